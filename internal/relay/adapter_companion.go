package relay

import (
	"context"

	"github.com/atvkit/atvkit/internal/companion"
)

// companionButtons maps the facade's HID-style navigation names onto
// Companion's _hidCommand button strings, for the subset MRP doesn't
// already cover when Companion is the only paired protocol.
var companionButtons = map[string]string{
	"up": "up", "down": "down", "left": "left", "right": "right",
	"select": "select", "menu": "menu", "home": "home",
	"play": "playpause", "pause": "playpause",
}

// CompanionRemoteControl adapts a companion.Client onto RemoteControl
// via its generic HID button dispatch. Next/Previous have no HID button
// on Companion, so they report unsupported — MRP is the expected
// provider for track skipping whenever both protocols are paired.
type CompanionRemoteControl struct {
	Client *companion.Client
}

func (a CompanionRemoteControl) press(ctx context.Context, name string) error {
	return a.Client.PressButton(ctx, companionButtons[name])
}

func (a CompanionRemoteControl) Up(ctx context.Context) error     { return a.press(ctx, "up") }
func (a CompanionRemoteControl) Down(ctx context.Context) error   { return a.press(ctx, "down") }
func (a CompanionRemoteControl) Left(ctx context.Context) error   { return a.press(ctx, "left") }
func (a CompanionRemoteControl) Right(ctx context.Context) error  { return a.press(ctx, "right") }
func (a CompanionRemoteControl) Select(ctx context.Context) error { return a.press(ctx, "select") }
func (a CompanionRemoteControl) Menu(ctx context.Context) error   { return a.press(ctx, "menu") }
func (a CompanionRemoteControl) Home(ctx context.Context) error   { return a.press(ctx, "home") }
func (a CompanionRemoteControl) Play(ctx context.Context) error   { return a.press(ctx, "play") }
func (a CompanionRemoteControl) Pause(ctx context.Context) error  { return a.press(ctx, "pause") }
func (a CompanionRemoteControl) Next(ctx context.Context) error {
	return notSupported("companion: no HID button for next-track")
}
func (a CompanionRemoteControl) Previous(ctx context.Context) error {
	return notSupported("companion: no HID button for previous-track")
}

var _ RemoteControl = CompanionRemoteControl{}

// CompanionPower adapts a companion.Client onto the facade's Power
// capability via _wakeDevice/_sleepDevice.
type CompanionPower struct {
	Client *companion.Client
}

func (a CompanionPower) TurnOn(ctx context.Context) error  { return a.Client.SetPower(ctx, true) }
func (a CompanionPower) TurnOff(ctx context.Context) error { return a.Client.SetPower(ctx, false) }

var _ Power = CompanionPower{}

// CompanionApps adapts a companion.Client onto the facade's Apps
// capability.
type CompanionApps struct {
	Client *companion.Client
}

func (a CompanionApps) AppList(ctx context.Context) (map[string]string, error) {
	return a.Client.AppList(ctx)
}

func (a CompanionApps) LaunchApp(ctx context.Context, bundleIDOrURL string) error {
	return a.Client.LaunchApp(ctx, bundleIDOrURL)
}

var _ Apps = CompanionApps{}

// CompanionKeyboard adapts a companion.Client onto the facade's
// Keyboard capability. TextFocusState reports Companion's current
// keyboard-session text verbatim; there is no separate focus/no-focus
// signal on the wire, so an empty string means "no text entered".
type CompanionKeyboard struct {
	Client *companion.Client
}

func (a CompanionKeyboard) TextFocusState(ctx context.Context) (string, error) {
	return a.Client.ReadKeyboard(ctx)
}

func (a CompanionKeyboard) SetText(ctx context.Context, text string) error {
	return a.Client.WriteKeyboard(ctx, text)
}

var _ Keyboard = CompanionKeyboard{}
