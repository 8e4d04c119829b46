package mrp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atvkit/atvkit/internal/atverrors"
	"github.com/atvkit/atvkit/internal/codec/mrpproto"
)

// Command identifies a remote-control action. Values mirror the HID
// usage page MRP expects for SendCommandMessage.Command.
type Command int32

const (
	CommandUp Command = iota + 1
	CommandDown
	CommandLeft
	CommandRight
	CommandSelect
	CommandMenu
	CommandHome
	CommandPlayPause
	CommandPlay
	CommandPause
	CommandNextTrack
	CommandPreviousTrack
	CommandVolumeUp
	CommandVolumeDown
)

// hidCommands are acked implicitly (tvOS 14+): the device never sends a
// CommandResultMessage for them, so SendCommand must not wait for one.
var hidCommands = map[Command]bool{
	CommandUp: true, CommandDown: true, CommandLeft: true, CommandRight: true,
	CommandSelect: true, CommandMenu: true, CommandHome: true,
	CommandPlayPause: true, CommandPlay: true, CommandPause: true,
	CommandNextTrack: true, CommandPreviousTrack: true,
	CommandVolumeUp: true, CommandVolumeDown: true,
}

// SendCommand issues a remote-control command against the active player
// (or playerPath, if non-empty) with the given input-action modifier.
// HID commands return as soon as the frame is written; all others block
// for the peer's CommandResultMessage and surface its SendError/
// HandlerReturnStatus as a CommandError.
func (c *Client) SendCommand(ctx context.Context, cmd Command, action InputAction, playerPath string) error {
	requestID := uuid.NewString()
	msg := &mrpproto.SendCommandMessage{
		Command:     int32(cmd),
		PlayerPath:  playerPath,
		InputAction: mrpproto.InputAction(action),
		RequestID:   requestID,
	}

	if hidCommands[cmd] {
		return c.sendEnvelope(&mrpproto.ProtocolMessage{
			Type: mrpproto.TypeSendCommandMessage, Payload: msg,
		})
	}

	ch := make(chan *mrpproto.CommandResultMessage, 1)
	c.mu.Lock()
	c.pending[requestID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
	}()

	if err := c.sendEnvelope(&mrpproto.ProtocolMessage{
		Type: mrpproto.TypeSendCommandMessage, Payload: msg,
	}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(10 * time.Second):
		return atverrors.Connection("mrp: command %v timed out waiting for result", cmd)
	case result := <-ch:
		if result.SendError != 0 || result.HandlerReturnStatus != 0 {
			subCode := fmt.Sprintf("send=%d handler=%d", result.SendError, result.HandlerReturnStatus)
			return atverrors.Command(subCode, "mrp: command %v failed", cmd)
		}
		return nil
	}
}

// InputAction is the modifier attached to a remote-control command.
type InputAction int32

const (
	InputActionSingleTap InputAction = InputAction(mrpproto.InputActionSingleTap)
	InputActionDoubleTap InputAction = InputAction(mrpproto.InputActionDoubleTap)
	InputActionHold      InputAction = InputAction(mrpproto.InputActionHold)
)

func (c *Client) resolveCommand(result *mrpproto.CommandResultMessage) {
	c.mu.Lock()
	ch, ok := c.pending[result.RequestID]
	c.mu.Unlock()
	if ok {
		select {
		case ch <- result:
		default:
		}
	}
}
