// Package transport defines the stream connections the routing hub runs
// over and the table that tracks them.
//
// A Conn is one virtual duplex byte stream to a remote endpoint. The udp
// package multiplexes many of them over one UDP socket; the mem package
// connects them in-process. The Table keeps every live Conn together with
// the peer identifier learned for it, if any.
package transport
