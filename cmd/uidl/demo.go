package main

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/vango-dev/uidl/pkg/connector"
	"github.com/vango-dev/uidl/pkg/session"
)

const buttonRPC = "com.example.ButtonRpc"

var (
	rootType   = connector.NewType("com.example.UI", nil)
	labelType  = connector.NewType("com.example.Label", nil)
	buttonType = connector.NewType("com.example.Button", nil)
)

// demoUI returns a factory building a counter with a button. With automatic
// push a clock label is also updated every second until ctx is done or the
// UI is closed.
func demoUI(ctx context.Context, mode session.PushMode) session.UIFactory {
	return func(ui *session.UI) error {
		tracker := ui.Tracker()
		if err := tracker.Register(connector.NewBase("0", rootType), ""); err != nil {
			return err
		}

		count := 0
		counter := connector.NewBase("1", labelType)
		_ = counter.Set("text", "Clicked 0 times")
		if err := tracker.Register(counter, "0"); err != nil {
			return err
		}

		button := connector.NewBase("2", buttonType)
		_ = button.Set("caption", "Click me")
		button.RegisterRPC(buttonRPC, connector.RPCFuncs{
			"click": func(params []json.RawMessage) error {
				count++
				return counter.Set("text", "Clicked "+strconv.Itoa(count)+" times")
			},
		})
		if err := tracker.Register(button, "0"); err != nil {
			return err
		}

		if mode != session.PushModeAutomatic {
			return nil
		}
		clock := connector.NewBase("3", labelType)
		_ = clock.Set("text", time.Now().Format(time.TimeOnly))
		if err := tracker.Register(clock, "0"); err != nil {
			return err
		}
		go runClock(ctx, ui, clock, time.Second)
		return nil
	}
}

// runClock updates clock under the session lock. Unlocking pushes the
// change to the client.
func runClock(ctx context.Context, ui *session.UI, clock *connector.Base, interval time.Duration) {
	sess := ui.Session()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sess.Lock()
			if sess.IsClosed() || ui.IsClosing() {
				_ = sess.Unlock()
				return
			}
			if err := clock.Set("text", now.Format(time.TimeOnly)); err != nil {
				sess.HandleError(ui, err)
			}
			if err := sess.Unlock(); err != nil {
				ui.Logger().Error("unlock failed", "error", err)
			}
		}
	}
}
