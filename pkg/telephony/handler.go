package telephony

// ConnectionHandler receives connection lifecycle notifications from the
// transport. The session controller implements it: a connected client
// triggers the greeting, a disconnect ends the session.
type ConnectionHandler interface {
	// OnClientConnected is called once the media stream has started and the
	// stream identifier is known.
	OnClientConnected(streamSID string)

	// OnClientDisconnected is called once when the stream stops or the
	// connection drops. The reason is informational.
	OnClientDisconnected(reason string)
}
