package provision

// SetEUID replaces the effective user id lookup.
func (p *Provisioner) SetEUID(euid func() int) {
	p.euid = euid
}
