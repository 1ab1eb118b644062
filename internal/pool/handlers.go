package pool

import (
	"fmt"
	"math/big"
	"time"

	"github.com/hashpool/hashpool/internal/channel"
	"github.com/hashpool/hashpool/internal/lockingkey"
	"github.com/hashpool/hashpool/internal/sv2frame"
	"github.com/hashpool/hashpool/internal/sv2mining"
	"github.com/hashpool/hashpool/internal/target"
	"github.com/hashpool/hashpool/internal/util"
)

// dispatchFrame routes one decoded mining-subprotocol frame to its
// handler. Grounded on M45-goPool's handleOneFrame dispatch switch.
func (e *Engine) dispatchFrame(c *conn, frame sv2frame.Frame) error {
	switch frame.MsgType {
	case sv2mining.MsgOpenStandardMiningChannel:
		return e.handleOpenStandardMiningChannel(c, frame.Payload)
	case sv2mining.MsgOpenExtendedMiningChannel:
		return e.handleOpenExtendedMiningChannel(c, frame.Payload)
	case sv2mining.MsgUpdateChannel:
		return e.handleUpdateChannel(c, frame.Payload)
	case sv2mining.MsgSubmitSharesStandard:
		return e.handleSubmitSharesStandard(c, frame.Payload)
	case sv2mining.MsgSubmitSharesExtended:
		return e.handleSubmitSharesExtended(c, frame.Payload)
	default:
		return fmt.Errorf("unhandled message type %#x", frame.MsgType)
	}
}

func (e *Engine) handleOpenStandardMiningChannel(c *conn, payload []byte) error {
	msg, err := sv2mining.DecodeOpenStandardMiningChannel(payload)
	if err != nil {
		return fmt.Errorf("decode OpenStandardMiningChannel: %w", err)
	}

	ceiling := target.FromU256LE(msg.MaxTarget)
	id := e.registry.Allocate()
	init := initialTarget(float64(msg.NominalHashRate), e.cfg.SharesPerMinute, ceiling)

	ch := channel.NewChannel(id, channel.KindStandard, msg.UserIdentity, float64(msg.NominalHashRate), init, ceiling, e.cfg.VardiffConfig, time.Now().Unix())
	ch.ExtranoncePrefix = e.extranonce.allocate()

	if msg.LockingKey != nil {
		key, err := lockingkey.Parse(*msg.LockingKey)
		if err != nil {
			return e.rejectOpenChannel(c, msg.RequestID, "invalid-locking-key", sv2mining.MsgOpenStandardMiningChannelError)
		}
		ch.SetLockingKey(&key)
	}

	e.registry.Add(ch)
	e.bindConn(id, c)
	c.addChannel(id)

	success := sv2mining.OpenStandardMiningChannelSuccess{
		RequestID:        msg.RequestID,
		ChannelID:        id,
		Target:           target.ToU256LE(init),
		ExtranoncePrefix: ch.ExtranoncePrefix,
	}
	out, err := success.Encode()
	if err != nil {
		return err
	}
	if err := c.send(0, sv2mining.MsgOpenStandardMiningChannelSuccess, out); err != nil {
		return err
	}

	tmpl := e.currentTemplate()
	ch.Jobs.Put(tmpl.ToJob())
	return e.sendPrevHashAndJob(c, ch, tmpl)
}

func (e *Engine) handleOpenExtendedMiningChannel(c *conn, payload []byte) error {
	msg, err := sv2mining.DecodeOpenExtendedMiningChannel(payload)
	if err != nil {
		return fmt.Errorf("decode OpenExtendedMiningChannel: %w", err)
	}

	ceiling := target.FromU256LE(msg.MaxTarget)
	id := e.registry.Allocate()
	init := initialTarget(float64(msg.NominalHashRate), e.cfg.SharesPerMinute, ceiling)

	ch := channel.NewChannel(id, channel.KindExtended, msg.UserIdentity, float64(msg.NominalHashRate), init, ceiling, e.cfg.VardiffConfig, time.Now().Unix())
	ch.ExtranoncePrefix = e.extranonce.allocate()
	extranonceSize := msg.MinExtranonceSize
	if extranonceSize == 0 {
		extranonceSize = 4
	}
	ch.ExtranonceSize = extranonceSize

	if msg.LockingKey != nil {
		key, err := lockingkey.Parse(*msg.LockingKey)
		if err != nil {
			return e.rejectOpenChannel(c, msg.RequestID, "invalid-locking-key", sv2mining.MsgOpenExtendedMiningChannelError)
		}
		ch.SetLockingKey(&key)
	}

	e.registry.Add(ch)
	e.bindConn(id, c)
	c.addChannel(id)

	success := sv2mining.OpenExtendedMiningChannelSuccess{
		RequestID:        msg.RequestID,
		ChannelID:        id,
		Target:           target.ToU256LE(init),
		ExtranonceSize:   ch.ExtranonceSize,
		ExtranoncePrefix: ch.ExtranoncePrefix,
	}
	out, err := success.Encode()
	if err != nil {
		return err
	}
	if err := c.send(0, sv2mining.MsgOpenExtendedMiningChannelSuccess, out); err != nil {
		return err
	}

	tmpl := e.currentTemplate()
	ch.Jobs.Put(tmpl.ToJob())
	return e.sendPrevHashAndJob(c, ch, tmpl)
}

func (e *Engine) rejectOpenChannel(c *conn, requestID uint32, code string, msgType uint8) error {
	out, err := sv2mining.OpenMiningChannelError{RequestID: requestID, ErrorCode: code}.Encode()
	if err != nil {
		return err
	}
	return c.send(0, msgType, out)
}

func (e *Engine) handleUpdateChannel(c *conn, payload []byte) error {
	msg, err := sv2mining.DecodeUpdateChannel(payload)
	if err != nil {
		return fmt.Errorf("decode UpdateChannel: %w", err)
	}
	ch, ok := e.registry.Get(msg.ChannelID)
	if !ok || !c.ownsChannel(msg.ChannelID) {
		out, _ := sv2mining.OpenMiningChannelError{RequestID: 0, ErrorCode: sv2mining.ErrUnknownChannel}.Encode()
		return c.send(0, sv2mining.MsgUpdateChannelError, out)
	}
	ceiling := target.FromU256LE(msg.MaximumTarget)
	proposed := initialTarget(float64(msg.NominalHashRate), e.cfg.SharesPerMinute, ceiling)
	newTarget := ch.UpdateNominalHashRate(float64(msg.NominalHashRate), ceiling, proposed)
	setTarget := sv2mining.SetTarget{ChannelID: msg.ChannelID, MaximumTarget: target.ToU256LE(newTarget)}
	out, err := setTarget.Encode()
	if err != nil {
		return err
	}
	return c.send(0, sv2mining.MsgSetTarget, out)
}

func (e *Engine) handleSubmitSharesStandard(c *conn, payload []byte) error {
	msg, err := sv2mining.DecodeSubmitSharesStandard(payload)
	if err != nil {
		return fmt.Errorf("decode SubmitSharesStandard: %w", err)
	}
	return e.processShare(c, msg.ChannelID, channel.Submission{
		SequenceNumber: msg.SequenceNumber,
		JobID:          msg.JobID,
		NTime:          msg.NTime,
		Nonce:          msg.Nonce,
		Version:        msg.Version,
	})
}

func (e *Engine) handleSubmitSharesExtended(c *conn, payload []byte) error {
	msg, err := sv2mining.DecodeSubmitSharesExtended(payload)
	if err != nil {
		return fmt.Errorf("decode SubmitSharesExtended: %w", err)
	}
	return e.processShare(c, msg.ChannelID, channel.Submission{
		SequenceNumber: msg.SequenceNumber,
		JobID:          msg.JobID,
		NTime:          msg.NTime,
		Nonce:          msg.Nonce,
		Version:        msg.Version,
		Extranonce:     msg.Extranonce,
	})
}

func (e *Engine) processShare(c *conn, channelID uint32, sub channel.Submission) error {
	ch, ok := e.registry.Get(channelID)
	if !ok || !c.ownsChannel(channelID) {
		out, _ := sv2mining.SubmitSharesError{ChannelID: channelID, SequenceNumber: sub.SequenceNumber, ErrorCode: sv2mining.ErrUnknownChannel}.Encode()
		return c.send(0, sv2mining.MsgSubmitSharesError, out)
	}

	tmpl := e.currentTemplate()
	result := channel.Validate(ch, sub, time.Now().Unix(), e.cfg.ClockSkewSeconds, e.cfg.MinimumShareDifficultyBits, tmpl.NetworkTarget)

	if !result.Accepted {
		out, err := sv2mining.SubmitSharesError{ChannelID: channelID, SequenceNumber: sub.SequenceNumber, ErrorCode: result.ErrorCode}.Encode()
		if err != nil {
			return err
		}
		return c.send(0, sv2mining.MsgSubmitSharesError, out)
	}

	success := sv2mining.SubmitSharesSuccess{
		ChannelID:               channelID,
		LastSequenceNumber:      result.LastSequenceNumber,
		NewSubmitsAcceptedCount: result.SubmitsAcceptedCount,
		NewSharesSum:            result.SharesSum,
	}
	out, err := success.Encode()
	if err != nil {
		return err
	}
	if err := c.send(0, sv2mining.MsgSubmitSharesSuccess, out); err != nil {
		return err
	}

	if result.BlockSolution {
		e.handleBlockSolution(ch, sub, tmpl, result)
	}

	e.dispatchQuote(channelID, sub.SequenceNumber, result.Hash, ch.LockingKey)
	e.maybeRetarget(c, ch)

	return nil
}

func (e *Engine) handleBlockSolution(ch *channel.Channel, sub channel.Submission, tmpl Template, result channel.Result) {
	util.Infof("pool: block solution found on channel %d (job %d, nonce %d)", ch.ID, sub.JobID, sub.Nonce)
	ctx := e.ctx
	if err := e.templates.SubmitBlockSolution(ctx, result.Hash[:], tmpl); err != nil {
		util.Warnf("pool: failed to submit block solution: %v", err)
	}
}

func (e *Engine) dispatchQuote(channelID, sequenceNumber uint32, headerHash [32]byte, lockingKey *lockingkey.Key) {
	if e.dispatcher == nil {
		return
	}
	const ehashPerShare = 1
	if err := e.dispatcher.Dispatch(channelID, sequenceNumber, headerHash, lockingKey, ehashPerShare, "ehash"); err != nil {
		util.Warnf("pool: quote dispatch failed for channel %d: %v", channelID, err)
	}
}

func (e *Engine) maybeRetarget(c *conn, ch *channel.Channel) {
	newTarget, adjusted := ch.MaybeRetarget(time.Now().Unix(), func(hashRate float64) *big.Int {
		return target.HashRateToTarget(hashRate, e.cfg.SharesPerMinute)
	})
	if !adjusted {
		return
	}
	setTarget := sv2mining.SetTarget{ChannelID: ch.ID, MaximumTarget: target.ToU256LE(newTarget)}
	out, err := setTarget.Encode()
	if err != nil {
		util.Warnf("pool: encode SetTarget for channel %d: %v", ch.ID, err)
		return
	}
	if err := c.send(0, sv2mining.MsgSetTarget, out); err != nil {
		util.Warnf("pool: send SetTarget for channel %d: %v", ch.ID, err)
	}
}

// sendPrevHashAndJob pushes SetNewPrevHash followed by the appropriate
// job message for ch's kind, satisfying the ordering invariant that
// SetNewPrevHash for a job's prev-hash precedes the job itself.
func (e *Engine) sendPrevHashAndJob(c *conn, ch *channel.Channel, tmpl Template) error {
	prevHash := sv2mining.SetNewPrevHash{
		ChannelID: ch.ID,
		JobID:     tmpl.JobID,
		PrevHash:  tmpl.PrevHash,
		MinNTime:  tmpl.NTimeMin,
		NBits:     tmpl.NBits,
	}
	out, err := prevHash.Encode()
	if err != nil {
		return err
	}
	if err := c.send(0, sv2mining.MsgSetNewPrevHash, out); err != nil {
		return err
	}

	if ch.Kind == channel.KindExtended {
		job := sv2mining.NewExtendedMiningJob{
			ChannelID:        ch.ID,
			JobID:            tmpl.JobID,
			FutureJob:        tmpl.FutureJob,
			Version:          tmpl.Version,
			MerklePath:       tmpl.MerklePath,
			CoinbaseTxPrefix: tmpl.CoinbaseTxPrefix,
			CoinbaseTxSuffix: tmpl.CoinbaseTxSuffix,
		}
		out, err := job.Encode()
		if err != nil {
			return err
		}
		return c.send(0, sv2mining.MsgNewExtendedMiningJob, out)
	}

	merkleRoot := channel.MerkleRootForExtranonce(tmpl.ToJob(), ch.ExtranoncePrefix)
	job := sv2mining.NewMiningJob{
		ChannelID:  ch.ID,
		JobID:      tmpl.JobID,
		Version:    tmpl.Version,
		MerkleRoot: merkleRoot,
	}
	out, err = job.Encode()
	if err != nil {
		return err
	}
	return c.send(0, sv2mining.MsgNewMiningJob, out)
}
