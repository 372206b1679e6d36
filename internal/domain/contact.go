package domain

import "time"

// Contact is the CRM record for a customer phone number. Owned by the CRM
// side of the system; this core only reads it to enrich ticket views.
type Contact struct {
	ID        string
	TenantID  string
	Name      string
	Phone     string
	Email     *string
	Photo     *string
	Active    bool
	CreatedAt time.Time
}
