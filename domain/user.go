package domain

const (
	RoleAdmin      = "admin"
	RolePharmacist = "pharmacist"
)

type User struct {
	ID        int64     `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Password  string    `json:"-" db:"password"`
	Role      string    `json:"role" db:"role"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt Timestamp `json:"created_at" db:"created_at"`
}
