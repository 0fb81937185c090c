package midi

import (
	"github.com/jsphweid/harmonyjam/model"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gitlab.com/gomidi/midi/v2"
)

// Player receives key presses from a live MIDI device.
type Player interface {
	KeyDown(sourceKey, pitch string, velocity float64)
	KeyUp(sourceKey string)
}

// Dispatch forwards one incoming message to p. It reports whether the
// message was a note start or end.
func Dispatch(msg midi.Message, p Player) bool {
	var ch, key, vel uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		p.KeyDown(sourceKey(key), model.PitchName(key), float64(vel)/127)
	case msg.GetNoteEnd(&ch, &key):
		p.KeyUp(sourceKey(key))
	default:
		return false
	}
	return true
}

// Listen feeds notes from input port number port into p until the returned
// stop func is called. The caller owns midi.CloseDriver.
func Listen(port int, p Player) (stop func(), err error) {
	logger := log.WithFields(log.Fields{"function": "midi.Listen", "port": port})
	in, err := midi.InPort(port)
	if err != nil {
		return nil, errors.Wrapf(err, "can't find midi input %d", port)
	}
	stop, err = midi.ListenTo(in, func(msg midi.Message, timestampms int32) {
		if Dispatch(msg, p) {
			logger.WithField("ts", timestampms).Debug(msg.String())
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "listen to midi input")
	}
	logger.Info("listening on " + in.String())
	return stop, nil
}

// CloseDriver releases the registered MIDI driver.
func CloseDriver() {
	midi.CloseDriver()
}
