//go:build linux

package serial

import (
	"strings"

	"github.com/hedhyw/Go-Serial-Detector/pkg/v1/serialdet"
)

// usb serial adapters that are used with the phone's headset jack
var phoneAdapters = []string{"pl2303", "ft232", "cp210", "ch340"}

// FindPhonePortName returns the first serial port that looks like a cable to a phone.
func FindPhonePortName() (string, error) {
	devices, err := serialdet.List()
	if err != nil {
		return "", err
	}

	for _, device := range devices {
		description := strings.ToLower(device.Description())
		for _, adapter := range phoneAdapters {
			if strings.Contains(description, adapter) {
				return device.Path(), nil
			}
		}
	}

	return "", ErrNoPhoneFound
}
