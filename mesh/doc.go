// Package mesh implements the clock mesh provider over UDP/OSC.
//
// One process runs as the mesh master and owns the authoritative
// timeline. Followers announce themselves to the master, measure their
// clock offset against it with ping round trips, and install the
// timeline broadcasts into their local clock domain. Local commits on
// a follower are forwarded to the master, which arbitrates them
// last-write-wins and rebroadcasts.
//
// Peer discovery is out of scope: members address the master
// explicitly by host and port.
package mesh
