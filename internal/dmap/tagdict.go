// Package dmap implements the DMAP/DAAP HTTP-plus-TLV control protocol
// used by older Apple TVs and the macOS Music app: session login,
// control commands, property updates, and the playstatusupdate
// long-poll.
package dmap

import "github.com/atvkit/atvkit/internal/codec/dmaptlv"

// tagDict is the built-in table for the tags exercised by login,
// control commands, and playstatusupdate. Built once at package init
// rather than as mutable global state.
var tagDict = dmaptlv.TagDict{
	"cmpa": dmaptlv.KindContainer, // login response wrapper
	"mlid": dmaptlv.KindUint4,     // session id
	"mstt": dmaptlv.KindUint4,     // status code
	"mlog": dmaptlv.KindContainer, // login container
	"mstm": dmaptlv.KindUint4,     // timeout-ms
	"cmst": dmaptlv.KindContainer, // playstatus container
	"caps": dmaptlv.KindUint1,     // play status (1 paused, 2 stopped, 3/4 playing)
	"cash": dmaptlv.KindUint1,     // shuffle state
	"cant": dmaptlv.KindUint4,     // remaining time, ms
	"canp": dmaptlv.KindRaw,       // now-playing container ids
	"cafs": dmaptlv.KindUint4,     // fast-forward speed
	"cavs": dmaptlv.KindUint4,     // rewind speed
	"carp": dmaptlv.KindUint1,     // repeat state
	"cast": dmaptlv.KindUint4,     // total track time, ms
	"catg": dmaptlv.KindUint4,     // playstatus revision number
	"cmpg": dmaptlv.KindUint8,     // pairing guid, returned by /pair
	"cmnm": dmaptlv.KindString,    // pairing client name
	"cmty": dmaptlv.KindString,    // pairing client device type
	"cann": dmaptlv.KindString,    // now-playing track name
	"cana": dmaptlv.KindString,    // now-playing artist
	"canl": dmaptlv.KindString,    // now-playing album
}
