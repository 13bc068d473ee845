package rover

import "errors"

var (
	// ErrInvalidDirectionCode is returned when a heading code is not one of N/S/E/W
	ErrInvalidDirectionCode = errors.New("invalid direction code")

	// ErrUnknownCommand is returned for a wire line whose tag is not recognized
	ErrUnknownCommand = errors.New("unknown command")

	// ErrMalformedCommand is returned for a recognized wire line with bad fields
	ErrMalformedCommand = errors.New("malformed command")

	// ErrUnknownManeuver is returned when an action code does not name a maneuver
	ErrUnknownManeuver = errors.New("unknown maneuver")

	// ErrNoVehicle is returned by operations that need a placed vehicle
	ErrNoVehicle = errors.New("vehicle not placed")

	// ErrNotConnected is returned when sending without an open link
	ErrNotConnected = errors.New("link not connected")

	// ErrConnectFailed wraps the causes of a failed primary + fallback attempt
	ErrConnectFailed = errors.New("connect failed")

	// ErrSuperseded is returned when a newer connect or disconnect overtook an attempt
	ErrSuperseded = errors.New("connection attempt superseded")

	// ErrListenUnsupported is returned by transports that cannot accept inbound links
	ErrListenUnsupported = errors.New("transport does not support listening")

	// ErrTransportClosed is returned by listeners and conns after Close
	ErrTransportClosed = errors.New("transport closed")
)
