/*
Package transport carries mediator requests across process boundaries.
It defines the reply envelope and codecs shared by every adapter, the
server-side Handler that decodes a named request and dispatches it, and the
client-side Request helper that maps remote error codes back to the
contract errors so errors.Is keeps working over the wire.
*/
package transport
