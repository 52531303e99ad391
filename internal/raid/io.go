package raid

import (
	"context"
	"fmt"
	"io"

	"github.com/deploymenttheory/go-ataraid/internal/interfaces"
	"github.com/deploymenttheory/go-ataraid/internal/logger"
	"github.com/deploymenttheory/go-ataraid/internal/types"
)

// Submit starts a transfer of buf at array sector lba and returns once every
// member request has been issued. A write overlapping the rebuild window
// first waits for the window to move; ctx bounds only that wait. Issued
// member requests always run to completion.
func (a *Array) Submit(ctx context.Context, dir types.Direction, lba uint64, buf []byte) (*Request, error) {
	if len(buf)%types.SectorSize != 0 {
		return nil, types.ErrUnaligned
	}
	req := newRequest(dir, lba, uint64(len(buf)/types.SectorSize))
	if req.Sectors == 0 {
		req.finish()
		return req, nil
	}

	if dir == types.Write {
		splits, err := a.planWrite(ctx, req, buf)
		if err != nil {
			return nil, err
		}
		for _, s := range splits {
			a.dispatchWrite(s)
		}
		return req, nil
	}

	chunks, err := a.planRead(req)
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		a.readChunk(req, c, buf[c.Offset*types.SectorSize:(c.Offset+c.Count)*types.SectorSize], 0, nil)
	}
	return req, nil
}

// ReadAt reads len(buf) bytes at array sector lba and waits for the result
func (a *Array) ReadAt(ctx context.Context, buf []byte, lba uint64) error {
	req, err := a.Submit(ctx, types.Read, lba, buf)
	if err != nil {
		return err
	}
	return req.Wait()
}

// WriteAt writes buf at array sector lba and waits for the result
func (a *Array) WriteAt(ctx context.Context, buf []byte, lba uint64) error {
	req, err := a.Submit(ctx, types.Write, lba, buf)
	if err != nil {
		return err
	}
	return req.Wait()
}

func (a *Array) planRead(req *Request) ([]Chunk, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == types.StateBroken {
		return nil, fmt.Errorf("%w: %s", types.ErrArrayBroken, a.nameLocked())
	}
	chunks, err := Translate(a.geometryLocked(), req.LBA, req.Sectors)
	if err != nil {
		return nil, err
	}
	req.pending.Store(int32(len(chunks)))
	return chunks, nil
}

// readChunk issues c to the best leg not yet tried. On a leg error the leg is
// taken offline and the chunk retried on the surviving copy.
func (a *Array) readChunk(req *Request, c Chunk, buf []byte, tried uint16, lastErr error) {
	a.mu.Lock()
	slot, dev := a.pickReadLegLocked(c, tried)
	offset := a.layout.Offset
	a.mu.Unlock()

	if dev == nil {
		if lastErr == nil {
			lastErr = fmt.Errorf("%w: member %d at lba %d", types.ErrNoLeg, c.Member, req.LBA+c.Offset)
		}
		req.fail(lastErr)
		req.chunkDone()
		return
	}

	lba := offset + c.LBA
	dev.Submit(types.Read, lba, buf, func(n int, err error) {
		if err == nil && n != len(buf) {
			err = io.ErrUnexpectedEOF
		}
		if err == nil {
			req.chunkDone()
			return
		}
		ioErr := &types.MemberIOError{Member: slot, Device: dev.Name(), LBA: lba, Dir: types.Read, Err: err}
		a.memberFailed(slot, dev, ioErr)
		a.readChunk(req, c, buf, tried|1<<uint(slot), ioErr)
	})
}

// pickReadLegLocked chooses the leg serving a read of chunk c. A leg whose
// previous read ended within the proximity window keeps the stream; otherwise
// the nearest leg wins. Offline legs are never chosen.
func (a *Array) pickReadLegLocked(c Chunk, tried uint16) (int, interfaces.BlockDevice) {
	best := -1
	var bestDist uint64
	for _, leg := range a.legsLocked(c.Member) {
		s := a.slotAt(leg)
		if tried&(1<<uint(leg)) != 0 || !s.online() {
			continue
		}
		d := distance(s.LastLBA, c.LBA)
		if d <= a.opts.Proximity {
			best = leg
			break
		}
		if best < 0 || d < bestDist {
			best, bestDist = leg, d
		}
	}
	if best < 0 {
		return -1, nil
	}
	s := a.slots[best]
	s.LastLBA = c.LBA + c.Count
	return best, s.Device
}

func distance(x, y uint64) uint64 {
	if x > y {
		return x - y
	}
	return y - x
}

// planWrite waits out the rebuild window, picks the legs of every chunk and
// registers the request as in flight
func (a *Array) planWrite(ctx context.Context, req *Request, buf []byte) ([]*splitRequest, error) {
	start, end := req.LBA, req.LBA+req.Sectors

	a.mu.Lock()
	for a.windowBlocksLocked(start, end) {
		wake := a.notify
		a.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}
		a.mu.Lock()
	}
	defer a.mu.Unlock()

	if a.state == types.StateBroken {
		return nil, fmt.Errorf("%w: %s", types.ErrArrayBroken, a.nameLocked())
	}
	chunks, err := Translate(a.geometryLocked(), start, req.Sectors)
	if err != nil {
		return nil, err
	}

	var splits []*splitRequest
	for _, c := range chunks {
		legs := a.writeLegsLocked(c, start)
		if len(legs) == 0 {
			return nil, fmt.Errorf("%w: member %d at lba %d", types.ErrNoLeg, c.Member, start+c.Offset)
		}
		join := newLegJoin(len(legs))
		for _, leg := range legs {
			splits = append(splits, &splitRequest{
				req:   req,
				chunk: c,
				slot:  leg,
				dev:   a.slots[leg].Device,
				lba:   a.layout.Offset + c.LBA,
				buf:   buf[c.Offset*types.SectorSize : (c.Offset+c.Count)*types.SectorSize],
				join:  join,
			})
		}
	}

	id := a.nextWrite
	a.nextWrite++
	a.inflight[id] = extent{start: start, end: end}
	req.release = func() { a.endWrite(id) }
	req.pending.Store(int32(len(chunks)))
	return splits, nil
}

// writeLegsLocked returns the slots a write of chunk c goes to: every online
// leg plus any spare whose synchronized prefix the chunk touches. The spare
// gets the whole chunk; the part past its prefix is copied again by the next
// rebuild pass.
func (a *Array) writeLegsLocked(c Chunk, base uint64) []int {
	chunkStart := base + c.Offset
	var legs []int
	for _, leg := range a.legsLocked(c.Member) {
		s := a.slotAt(leg)
		switch {
		case s.online():
			legs = append(legs, leg)
		case s.spare() && chunkStart < s.Synced:
			legs = append(legs, leg)
		}
	}
	return legs
}

func (a *Array) windowBlocksLocked(start, end uint64) bool {
	if a.lockStart == types.NoRebuild {
		return false
	}
	return extent{start: a.lockStart, end: a.lockEnd}.overlaps(start, end)
}

func (a *Array) inflightOverlapsLocked(start, end uint64) bool {
	for _, e := range a.inflight {
		if e.overlaps(start, end) {
			return true
		}
	}
	return false
}

func (a *Array) endWrite(id uint64) {
	a.mu.Lock()
	delete(a.inflight, id)
	a.broadcastLocked()
	a.mu.Unlock()
}

func (a *Array) dispatchWrite(s *splitRequest) {
	s.dev.Submit(types.Write, s.lba, s.buf, func(n int, err error) {
		if err == nil && n != len(s.buf) {
			err = io.ErrShortWrite
		}
		var legErr error
		if err != nil {
			legErr = &types.MemberIOError{Member: s.slot, Device: s.dev.Name(), LBA: s.lba, Dir: types.Write, Err: err}
			a.memberFailed(s.slot, s.dev, legErr)
		}
		last, chunkErr := s.join.complete(legErr)
		if !last {
			return
		}
		if chunkErr != nil {
			s.req.fail(chunkErr)
		}
		s.req.chunkDone()
	})
}

// memberFailed takes a leg offline after an I/O error, unless the slot has
// been given another device in the meantime
func (a *Array) memberFailed(slot int, dev interfaces.BlockDevice, err error) {
	a.mu.Lock()
	s := a.slotAt(slot)
	current := s != nil && s.Device == dev
	name := a.nameLocked()
	a.mu.Unlock()

	logger.Warn("member I/O error", "array", name, "slot", slot, "device", dev.Name(), "error", err)
	if !current {
		return
	}
	if evErr := a.OnMemberEvent(slot, types.EventWentOffline, nil); evErr != nil {
		logger.Error("failed to take member offline", "array", name, "slot", slot, "error", evErr)
	}
}
