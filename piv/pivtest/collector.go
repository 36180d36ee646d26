package pivtest

import (
	"github.com/effective-security/pivcsr/piv"
)

// Collector returns scripted PINs, and piv.ErrPINCancelled when none left
type Collector struct {
	PINs     []string
	Requests []piv.VerifyPINRequest
	Released int
}

// NewCollector returns collector with the PINs to enter
func NewCollector(pins ...string) *Collector {
	return &Collector{PINs: pins}
}

// Release implements piv.KeyCollector
func (c *Collector) Release() error {
	c.Released++
	return nil
}

// VerifyPIN implements piv.KeyCollector
func (c *Collector) VerifyPIN(req piv.VerifyPINRequest) ([]byte, error) {
	c.Requests = append(c.Requests, req)
	if len(c.PINs) == 0 {
		return nil, piv.ErrPINCancelled
	}
	pin := c.PINs[0]
	c.PINs = c.PINs[1:]
	return []byte(pin), nil
}
