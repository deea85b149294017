package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"viewsync/internal/adapters/clock"
	"viewsync/internal/adapters/player"
	"viewsync/internal/adapters/wschannel"
	"viewsync/internal/core"
	"viewsync/pkg/vsp"
)

// engineEvents forwards channel callbacks to the engine. The channel is
// built before the engine, so the pointer is filled in afterwards.
type engineEvents struct {
	engine *core.Engine
}

func (p *engineEvents) ChannelOpened(epoch uint64) {
	p.engine.ChannelOpened(epoch)
}

func (p *engineEvents) ChannelClosed(epoch uint64, willReconnect bool, retryIn time.Duration) {
	p.engine.ChannelClosed(epoch, willReconnect, retryIn)
}

func (p *engineEvents) SnapshotTimeout(epoch uint64) {
	p.engine.SnapshotTimeout(epoch)
}

func (p *engineEvents) HandleServerMessage(epoch uint64, msg vsp.ServerMessage) {
	p.engine.HandleServerMessage(epoch, msg)
}

func watchCommand() *cobra.Command {
	var (
		mediaURI string
		interval time.Duration
		speed    float64
		volume   float64
		seekTo   float64
	)

	cmd := &cobra.Command{
		Use:   "watch <video-id>",
		Short: "Play a video with synchronized session state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			videoID := args[0]
			if mediaURI == "" {
				return fmt.Errorf("media uri required (use --media)")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			statusCh := make(chan core.Status, 8)
			metaCh := make(chan vsp.VideoMetadata, 1)

			proxy := &engineEvents{}
			channel := wschannel.NewManager(wschannel.Options{
				ServerURL: app.server,
				Token:     app.token,
				Events:    proxy,
			})

			var engine *core.Engine
			driver, err := player.NewDriver(player.Config{
				URI:            mediaURI,
				OnMediaReady:   func() { engine.NotifyMediaReady() },
				OnSeekComplete: func() { engine.NotifySeekComplete() },
			})
			if err != nil {
				return err
			}
			defer driver.Close()

			engine = core.NewEngine(core.Options{
				Cache:   app.cache,
				Channel: channel,
				Driver:  driver,
				Clock:   clock.Clock{},
				OnStatus: func(s core.Status) {
					select {
					case statusCh <- s:
					default:
					}
				},
				OnMetadata: func(m vsp.VideoMetadata) {
					select {
					case metaCh <- m:
					default:
					}
				},
			})
			proxy.engine = engine

			engine.InitSession(videoID)
			defer engine.DestroySession()

			if err := driver.Start(); err != nil {
				return err
			}
			if cmd.Flags().Changed("speed") {
				engine.SetSpeed(speed)
			}
			if cmd.Flags().Changed("volume") {
				engine.SetVolume(volume)
			}
			if cmd.Flags().Changed("seek") {
				driver.Seek(seekTo)
				engine.Seek(seekTo)
			}

			return watchLoop(ctx, engine, driver, statusCh, metaCh, interval)
		},
	}

	cmd.Flags().StringVarP(&mediaURI, "media", "m", "", "media uri to play")
	cmd.Flags().DurationVar(&interval, "poll-interval", 250*time.Millisecond, "position poll interval")
	cmd.Flags().Float64Var(&speed, "speed", 1.0, "playback speed")
	cmd.Flags().Float64Var(&volume, "volume", 1.0, "volume (0..1)")
	cmd.Flags().Float64Var(&seekTo, "seek", 0, "start position in seconds")

	return cmd
}

type positioner interface {
	Position() (float64, bool)
}

func watchLoop(ctx context.Context, engine *core.Engine, driver positioner, statusCh chan core.Status, metaCh chan vsp.VideoMetadata, interval time.Duration) error {
	area, err := pterm.DefaultArea.Start()
	if err != nil {
		return err
	}
	defer area.Stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	status := core.StatusConnecting
	var meta *vsp.VideoMetadata

	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-statusCh:
			status = s
		case m := <-metaCh:
			meta = &m
		case <-ticker.C:
			// Samples from a freshly started player are meaningless until
			// resolution has run; forwarding them would clobber the cached
			// resume position mid-handshake.
			if engine.Session().State == core.StateReady {
				if pos, ok := driver.Position(); ok {
					engine.UpdatePosition(pos)
				}
			}
		}
		area.Update(renderWatch(engine.Session(), status, meta))
	}
}

func renderWatch(info core.SessionInfo, status core.Status, meta *vsp.VideoMetadata) string {
	position := formatSeconds(info.Local.CurrentTime)
	if meta != nil && meta.DurationSeconds > 0 {
		position = fmt.Sprintf("%s / %s", position, formatSeconds(meta.DurationSeconds))
	}

	lines := []string{
		pterm.Sprintf("%s %s", pterm.Bold.Sprint("video:"), info.VideoID),
		pterm.Sprintf("%s %s (%s)", pterm.Bold.Sprint("connection:"), info.State, status),
		pterm.Sprintf("%s %s", pterm.Bold.Sprint("position:"), position),
		pterm.Sprintf("%s %.2fx  %s %.0f%%  %s v%d",
			pterm.Bold.Sprint("speed:"), info.Local.PlaybackSpeed,
			pterm.Bold.Sprint("volume:"), info.Local.Volume*100,
			pterm.Bold.Sprint("state:"), info.Local.Version),
	}

	out := ""
	for _, line := range lines {
		out += line + "\n"
	}
	return out
}

func formatSeconds(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
