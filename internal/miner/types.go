package miner

// Defaults used when a field cannot be found on the page
const (
	DefaultCommodity = "General Freight"
	DefaultWeight    = "Weight not specified"
	DefaultRate      = "Rate to be quoted"

	PickupNotFound   = "Pickup not found"
	DeliveryNotFound = "Delivery not found"
)

// LocationDate is a "City, ST" location with the nearest date found around it
type LocationDate struct {
	Location string `json:"location"`
	Date     string `json:"date,omitempty"`
}

// String renders the location with its date in parentheses when one was found
func (l LocationDate) String() string {
	if l.Date == "" {
		return l.Location
	}
	return l.Location + " (" + l.Date + ")"
}

// LoadDetails is the structured record mined from a load details page
type LoadDetails struct {
	Pickup      *LocationDate `json:"pickup"`
	Delivery    *LocationDate `json:"delivery"`
	Commodity   string        `json:"commodity"`
	Weight      string        `json:"weight"`
	Rate        string        `json:"rate"`
	Temperature string        `json:"temperature"`
}

// PickupDisplay returns the pickup line shown in replies
func (d LoadDetails) PickupDisplay() string {
	if d.Pickup == nil {
		return PickupNotFound
	}
	return d.Pickup.String()
}

// DeliveryDisplay returns the delivery line shown in replies
func (d LoadDetails) DeliveryDisplay() string {
	if d.Delivery == nil {
		return DeliveryNotFound
	}
	return d.Delivery.String()
}

// HasLocation reports whether at least one location was mined
func (d LoadDetails) HasLocation() bool {
	return d.Pickup != nil || d.Delivery != nil
}
