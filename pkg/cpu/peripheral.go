package cpu

// Presenter renders a framebuffer on the host.
type Presenter interface {
	Present(fb Framebuffer) error
}

// KeySource polls the host keyboard into a keypad snapshot.
type KeySource interface {
	PollKeys() Keypad
}

// Buzzer is told whether the sound timer is running.
type Buzzer interface {
	SetSounding(on bool)
}

// Host bundles the services a scheduler needs from the platform.
type Host interface {
	Presenter
	KeySource
	Buzzer
}

// PresentIfDirty hands the framebuffer to p when it changed since the last
// call and clears the dirty flag on success.
func (c *CPU) PresentIfDirty(p Presenter) error {
	if !c.Display.Dirty() {
		return nil
	}
	if err := p.Present(c.Display.Framebuffer()); err != nil {
		return err
	}
	c.Display.MarkPresented()
	return nil
}
