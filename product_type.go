package breeze

import "strings"

// wireProductTypes maps the product type names the backend and notification
// tokens use, camel case or snake case
var wireProductTypes = map[string]ProductType{
	"consumable":       ProductTypeConsumable,
	"nonconsumable":    ProductTypeNonConsumable,
	"non_consumable":   ProductTypeNonConsumable,
	"autorenewable":    ProductTypeAutoRenewable,
	"auto_renewable":   ProductTypeAutoRenewable,
	"nonautorenewable": ProductTypeNonRenewable,
	"nonrenewable":     ProductTypeNonRenewable,
	"non_renewable":    ProductTypeNonRenewable,
}

// ParseProductType converts a wire product type. Unknown values are kept as is.
func ParseProductType(s string) ProductType {
	if t, ok := wireProductTypes[strings.ToLower(s)]; ok {
		return t
	}
	return ProductType(s)
}

// FormatProductType converts t to the backend's camel case name
func FormatProductType(t ProductType) string {
	switch t {
	case ProductTypeConsumable:
		return "consumable"
	case ProductTypeNonConsumable:
		return "nonConsumable"
	case ProductTypeAutoRenewable:
		return "autoRenewable"
	case ProductTypeNonRenewable:
		return "nonAutoRenewable"
	}
	return string(t)
}
