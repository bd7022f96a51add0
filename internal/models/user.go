package models

// UserRole distinguishes consumers, vendors, drivers and support staff.
type UserRole string

const (
	UserRoleCustomer UserRole = "customer"
	UserRoleVendor   UserRole = "vendor"
	UserRoleDriver   UserRole = "driver"
	UserRoleSupport  UserRole = "support"
	UserRoleAdmin    UserRole = "admin"
)

// User carries only the fields this core needs: identity for message
// attribution and a phone number for the SMS channel. Account management
// lives in a separate service.
type User struct {
	BaseModel
	Name  string   `gorm:"not null"`
	Phone string   `gorm:"index"`
	Role  UserRole `gorm:"default:'customer'"`
}
