package adoftp

// Handle the "USER" command. Any user name is fine, the server is anonymous.
func (c *clientHandler) handleUSER(param string) error {
	c.user = param

	return c.writeReply(StatusUserOK)
}

// Handle the "PASS" command. Any password is accepted, including an empty one.
func (c *clientHandler) handlePASS(_ string) error {
	return c.writeReply(StatusUserLoggedIn)
}
