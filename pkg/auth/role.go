package auth

import "strings"

// CommerceRole is the coarse account category of a caller.
type CommerceRole string

// Commerce roles.
const (
	Buyer    CommerceRole = "Buyer"
	Seller   CommerceRole = "Seller"
	Supplier CommerceRole = "Supplier"
)

// ParseCommerceRole maps a usrtype claim to a CommerceRole, ignoring case.
// Admin users are sellers.
func ParseCommerceRole(userType string) (CommerceRole, error) {
	switch strings.ToLower(userType) {
	case "buyer":
		return Buyer, nil
	case "seller", "admin":
		return Seller, nil
	case "supplier":
		return Supplier, nil
	default:
		return "", &UnknownUserTypeError{UserType: userType}
	}
}

func (r CommerceRole) String() string { return string(r) }
