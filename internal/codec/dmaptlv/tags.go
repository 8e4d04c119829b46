package dmaptlv

// StandardTags is the tag dictionary for the DMAP/DACP containers atvkit
// decodes: login, content-codes, now-playing status, and pairing blobs.
// Tags outside this set decode as raw bytes.
var StandardTags = TagDict{
	"mlog": KindContainer, // dmap.loginresponse
	"mlid": KindUint4,     // dmap.sessionid
	"mstt": KindUint4,     // dmap.status
	"mlcl": KindContainer, // dmap.listing
	"mlit": KindContainer, // dmap.listingitem
	"miid": KindUint4,     // dmap.itemid
	"minm": KindString,    // dmap.itemname

	"cmst": KindContainer, // dacp.playstatus
	"cmsr": KindUint4,     // dacp.serverrevision
	"caps": KindUint1,     // dacp.playstatus (play state)
	"cash": KindUint1,     // dacp.shuffle
	"carp": KindUint1,     // dacp.repeat
	"cant": KindUint4,     // dacp.remainingtime
	"cast": KindUint4,     // dacp.totaltime
	"canp": KindRaw,       // dacp.nowplaying ids

	"cann": KindString, // dacp.nowplayingname (title)
	"cana": KindString, // dacp.nowplayingartist
	"canl": KindString, // dacp.nowplayingalbum
	"cang": KindString, // dacp.nowplayinggenre

	"cmvo": KindUint4, // dacp.volumecontrol
	"cmgt": KindContainer,
	"cmpr": KindUint1,
	"capr": KindUint1,

	"cmpa": KindContainer, // dacp.pairing-response (legacy pairing blob)
	"cmpg": KindUint8,     // dacp.pairingguid
	"cmnm": KindString,    // device name
	"cmty": KindString,    // device type
	"cmpv": KindUint1,     // protocol version
}
