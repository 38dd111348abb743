package services

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"etix/src/lib"
	awslib "etix/src/lib/aws"
)

// StorageQRIssuer renders ticket QR images to a temp file, uploads
// them to the asset bucket and caches the presigned URL in redis so
// repeated ticket reads don't round-trip to S3.
type StorageQRIssuer struct{}

func (StorageQRIssuer) GeneratePayload() string {
	return lib.NewQRPayload()
}

func (StorageQRIssuer) RenderAndStore(payload string) (*string, error) {
	tempdir := os.Getenv("TEMP_DIR")
	if tempdir == "" {
		tempdir = os.TempDir()
	}
	filename := fmt.Sprintf("ticketqr_%s", payload)
	filepath := path.Join(tempdir, fmt.Sprintf("%s.jpeg", filename))
	if err := lib.RenderQRCode(payload, filepath); err != nil {
		return nil, err
	}
	defer os.Remove(filepath)

	url, err := awslib.S3UploadAsset(filename, filepath)
	if err != nil {
		return nil, err
	}
	if rd := lib.GetRedisClient(); rd != nil {
		rd.SetEx(context.Background(), filename, *url, 2*time.Hour)
	}
	return url, nil
}
