//go:build !linux

package serial

func FindPhonePortName() (string, error) {
	// no-op for other OSes
	return "", ErrNoPhoneFound
}
