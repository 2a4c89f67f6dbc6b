package directory

// Contact is one entry of a patient's contact list. Every field is optional.
type Contact struct {
	Address *string `json:"address,omitempty"`
	Number  *string `json:"number,omitempty"`
	Email   *string `json:"email,omitempty"`
}

// Patient is a single directory record.
type Patient struct {
	ID        int       `json:"patient_id"`
	Name      string    `json:"patient_name"`
	Age       int       `json:"age"`
	PhotoURL  *string   `json:"photo_url"`
	Contacts  []Contact `json:"contact"`
	Condition string    `json:"medical_issue"`
}

// PrimaryContact returns the first contact entry, the only one consulted
// by search and display.
func (p *Patient) PrimaryContact() (Contact, bool) {
	if len(p.Contacts) == 0 {
		return Contact{}, false
	}
	return p.Contacts[0], true
}

// PrimaryAddress returns the address of the first contact entry, if any.
func (p *Patient) PrimaryAddress() (string, bool) {
	c, ok := p.PrimaryContact()
	if !ok || c.Address == nil {
		return "", false
	}
	return *c.Address, true
}
