package adoftp

func (c *clientHandler) handleNOOP(_ string) error {
	return c.writeReply(StatusOK)
}

func (c *clientHandler) handleSYST(_ string) error {
	return c.writeMessage(StatusSystemType, "UNIX Type: L8")
}

// Handle the "TYPE" command. The flag is recorded and acknowledged but the
// data channel always carries raw bytes.
func (c *clientHandler) handleTYPE(param string) error {
	switch param {
	case "A", "A N":
		c.currentTransferType = TransferTypeASCII
	case "I", "L 8":
		c.currentTransferType = TransferTypeBinary
	default:
		return c.writeReply(StatusSyntaxErrorNotRecognised)
	}

	return c.writeReply(StatusOK)
}

// Handle the "QUIT" command. Anything after the verb is ignored.
func (c *clientHandler) handleQUIT(_ string) error {
	if err := c.writeReply(StatusClosingControlConn); err != nil {
		return err
	}

	return errSessionEnd
}
