package graph

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"

	"github.com/rvirk/etherwave/internal/audio"
)

// driver pulls samples through the node chain at real-time rate and
// pushes 20ms int16 frames into the sink. One driver exists per open
// generation; it dies with the generation.
type driver struct {
	src    *SourceNode
	ctrl   *beep.Ctrl
	pullMu *sync.Mutex
	sink   FrameSink

	fadeTotal int
	fadeMu    sync.Mutex
	fadePos   int

	fail   func(error)
	cancel context.CancelFunc
	done   chan struct{}
}

func startDriver(src *SourceNode, ctrl *beep.Ctrl, pullMu *sync.Mutex, sink FrameSink, fadeIn int, fail func(error)) *driver {
	ctx, cancel := context.WithCancel(context.Background())
	d := &driver{
		src:       src,
		ctrl:      ctrl,
		pullMu:    pullMu,
		sink:      sink,
		fadeTotal: fadeIn,
		fail:      fail,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go d.run(ctx)
	return d
}

// restartFade re-arms the fade-in, masking the click of a resume.
func (d *driver) restartFade() {
	d.fadeMu.Lock()
	d.fadePos = 0
	d.fadeMu.Unlock()
}

func (d *driver) stop() {
	d.cancel()
	<-d.done
}

// report raises err to the owner unless the driver was told to stop, in
// which case dying quietly is the expected outcome.
func (d *driver) report(ctx context.Context, err error) {
	if ctx.Err() != nil || d.fail == nil {
		return
	}
	d.fail(err)
}

func (d *driver) run(ctx context.Context) {
	defer close(d.done)

	// header parsing blocks until enough bytes are buffered, which is
	// why the decoder initializes here and not on the control path
	if err := d.src.ensureDecoder(); err != nil {
		log.Printf("Driver: %v", err)
		d.report(ctx, err)
		return
	}

	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	buf := make([][2]float64, audio.FrameSize)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n := d.pullFrame(buf)
		if n == 0 {
			err := d.src.Err()
			if err == nil {
				err = errors.New("sample chain exhausted")
			}
			log.Printf("Driver: %v", err)
			d.report(ctx, err)
			return
		}
		for i := n; i < len(buf); i++ {
			buf[i] = [2]float64{}
		}

		d.applyFade(buf[:n])
		d.sink.Push(audio.FrameToInt16(buf))
	}
}

// pullFrame fills buf from the chain, holding the pull lock the way the
// speaker would. Returns 0 when the chain is exhausted.
func (d *driver) pullFrame(buf [][2]float64) int {
	d.pullMu.Lock()
	defer d.pullMu.Unlock()

	filled := 0
	for filled < len(buf) {
		n, ok := d.ctrl.Stream(buf[filled:])
		filled += n
		if !ok {
			break
		}
		if n == 0 {
			break
		}
	}
	return filled
}

func (d *driver) applyFade(frame [][2]float64) {
	d.fadeMu.Lock()
	defer d.fadeMu.Unlock()

	if d.fadePos >= d.fadeTotal {
		return
	}
	for i := range frame {
		g := audio.FadeGain(d.fadePos, d.fadeTotal)
		frame[i][0] *= g
		frame[i][1] *= g
		d.fadePos++
		if d.fadePos >= d.fadeTotal {
			return
		}
	}
}
