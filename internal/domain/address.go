package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Address is a postal address stored as a JSONB column. The zero value means
// no address was supplied.
type Address struct {
	Name       string `json:"name,omitempty"`
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *Address) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Address{}
		return nil
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("cannot scan %T into Address", src)
	}
}
