package models

// User mirrors an account owned by the external auth/profile provider.
// ID is the provider's subject identifier.
type User struct {
	ID    string `gorm:"primaryKey;size:64" json:"id"`
	Name  string `gorm:"size:255" json:"name"`
	Email string `gorm:"size:255;index" json:"email"`
	Timestamps
}

// All returns every model managed by AutoMigrate, in dependency order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Category{},
		&Event{},
		&EventCategory{},
		&Ticket{},
		&Registration{},
		&Attendee{},
		&EventStatistics{},
		&PaymentGatewayEvent{},
	}
}
