package container

import (
	"fmt"
	"strconv"
	"strings"
)

// PortBinding maps a host port to a container port.
type PortBinding struct {
	Host      int
	Container int
}

// String renders the binding in docker's "host:container" form.
func (p PortBinding) String() string {
	return fmt.Sprintf("%d:%d", p.Host, p.Container)
}

// ParsePortBinding parses "host:container". A bare "port" binds the same port
// on both sides.
func ParsePortBinding(s string) (PortBinding, error) {
	hostPart, containerPart, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		containerPart = hostPart
	}

	host, err := strconv.Atoi(hostPart)
	if err != nil {
		return PortBinding{}, fmt.Errorf("invalid host port in %q: %w", s, err)
	}
	ctr, err := strconv.Atoi(containerPart)
	if err != nil {
		return PortBinding{}, fmt.Errorf("invalid container port in %q: %w", s, err)
	}

	b := PortBinding{Host: host, Container: ctr}
	if err := b.validate(); err != nil {
		return PortBinding{}, err
	}
	return b, nil
}

func (p PortBinding) validate() error {
	if p.Host < 1 || p.Host > 65535 {
		return fmt.Errorf("host port %d out of range", p.Host)
	}
	if p.Container < 1 || p.Container > 65535 {
		return fmt.Errorf("container port %d out of range", p.Container)
	}
	return nil
}

// Spec describes the container to launch.
type Spec struct {
	// Image is the image reference passed to the launcher
	Image string

	// Name is an optional container name
	Name string

	// Ports are published from the container to the host
	Ports []PortBinding

	// Args are appended after the image as the container command
	Args []string

	// Env is passed to the container environment
	Env map[string]string

	// AutoRemove removes the container once it stops (docker run --rm)
	AutoRemove bool
}

// Validate checks that the spec can be handed to a launcher.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Image) == "" {
		return fmt.Errorf("image is required")
	}
	for _, p := range s.Ports {
		if err := p.validate(); err != nil {
			return err
		}
	}
	return nil
}
