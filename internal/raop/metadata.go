package raop

import (
	"github.com/atvkit/atvkit/internal/atverrors"
	"github.com/atvkit/atvkit/internal/codec/dmaptlv"
)

// daapMetadataDict names the DAAP tags a metadata push uses; artwork is
// pushed separately via its own SET_PARAMETER with image content types.
var daapMetadataDict = dmaptlv.TagDict{
	"minm": dmaptlv.KindString, // track title
	"asar": dmaptlv.KindString, // artist
	"asal": dmaptlv.KindString, // album
	"mlit": dmaptlv.KindContainer,
}

// TrackMetadata describes the now-playing track to push to the receiver.
type TrackMetadata struct {
	Title  string
	Artist string
	Album  string
}

// PushMetadata sends track metadata as a DAAP-tagged SET_PARAMETER body,
// per §4.10.
func (s *Session) PushMetadata(m TrackMetadata) error {
	body, err := dmaptlv.Encode([]dmaptlv.Node{
		{Tag: "mlit", Kind: dmaptlv.KindContainer, Children: []dmaptlv.Node{
			{Tag: "minm", Kind: dmaptlv.KindString, Value: m.Title},
			{Tag: "asar", Kind: dmaptlv.KindString, Value: m.Artist},
			{Tag: "asal", Kind: dmaptlv.KindString, Value: m.Album},
		}},
	})
	if err != nil {
		return atverrors.Wrap(atverrors.KindProtocol, err, "raop: encoding metadata")
	}
	headers := s.baseHeaders()
	headers["Content-Type"] = "application/x-dmap-tagged"
	if s.sessionID != "" {
		headers["Session"] = s.sessionID
	}
	_, _, err = s.roundTrip("SET_PARAMETER", s.target(), headers, body)
	return err
}

// PushArtwork sends artwork bytes with the given MIME content type as a
// separate SET_PARAMETER, per §4.10's "artwork pushed via a separate
// request" note.
func (s *Session) PushArtwork(contentType string, data []byte) error {
	headers := s.baseHeaders()
	headers["Content-Type"] = contentType
	if s.sessionID != "" {
		headers["Session"] = s.sessionID
	}
	_, _, err := s.roundTrip("SET_PARAMETER", s.target(), headers, data)
	return err
}
