package boot

import (
	"log"
	"time"

	"etix/src/db"
	"etix/src/lib"
	"etix/src/models"
	"etix/src/services"

	"gorm.io/gorm"
)

func InitDb() *gorm.DB {
	db := db.GetDb()

	err := db.AutoMigrate(
		&models.User{},
		&models.Event{},
		&models.TicketType{},
		&models.Order{},
		&models.OrderItem{},
		&models.Ticket{},
	)
	if err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}

	return db
}

// InitScheduler starts the background sweep that cancels orders whose
// payment window has closed. Expiry is also enforced lazily per
// request; the sweep keeps the table tidy between interactions.
func InitScheduler() {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("An error has occurred. Check logs for info")
		return
	}
	_, err = lib.CreateCronJob(func() {
		n, err := services.SweepExpiredOrders(db.GetDb())
		if err != nil {
			log.Printf("Error sweeping expired orders: %s\n", err.Error())
			return
		}
		if n > 0 {
			log.Printf("Cancelled %d expired orders\n", n)
		}
	}, time.Minute)
	if err != nil {
		log.Printf("Error running job: %s\n", err.Error())
		return
	}
	sched.Start()
}

func StopScheduler() {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("Error retrieving Scheduler. Check logs for info")
		return
	}
	err = sched.Shutdown()
	if err != nil {
		log.Println("An error has occurred while stopping Scheduler. Check logs for info")
		return
	}
}
