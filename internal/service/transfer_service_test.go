package service

import (
	"errors"
	"testing"
	"time"

	"parkcore/internal/entities"
	apperrors "parkcore/internal/errors"
)

func acceptAs(offerID, userID string) AcceptSwapInput {
	return AcceptSwapInput{
		OfferID:   offerID,
		UserID:    userID,
		UserName:  "Buyer",
		UserEmail: "buyer@example.com",
		UserPhone: "+3911111111",
	}
}

func TestSwapTransfersOwnership(t *testing.T) {
	f := newFixture(t)
	broker := NewTransferBroker(f.engine, f.payments, 30*time.Minute)

	b, err := f.engine.RequestBooking(request(entities.TierStandard, win(t, day, 10, 0, 12, 0), 1000))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	offer, err := broker.ProposeSwap(b.ID, b.UserID, 2500)
	if err != nil {
		t.Fatalf("propose failed: %v", err)
	}
	if offer.Status != entities.SwapOpen {
		t.Fatalf("expected open offer, got %s", offer.Status)
	}

	got, err := broker.AcceptSwap(acceptAs(offer.ID, "u-buyer"))
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if got.UserID != "u-buyer" {
		t.Fatalf("ownership not transferred, user %s", got.UserID)
	}
	if got.SpotID != b.SpotID || !got.Window.Start.Equal(b.Window.Start) {
		t.Fatalf("swap moved the interval: %+v", got)
	}
	if !f.arena.Holds(b.SpotID, b.ID) {
		t.Fatalf("interval commitment lapsed during the handover")
	}
	// The proposer's hold is released, the buyer's stands.
	if len(f.payments.released) != 1 {
		t.Fatalf("expected the original hold released, got %v", f.payments.released)
	}

	t.Run("accepted offer cannot be accepted again", func(t *testing.T) {
		_, err := broker.AcceptSwap(acceptAs(offer.ID, "u-other"))
		if !errors.Is(err, apperrors.ErrOfferNotFound) {
			t.Fatalf("expected ErrOfferNotFound, got %v", err)
		}
	})
}

func TestSwapValidations(t *testing.T) {
	f := newFixture(t)
	broker := NewTransferBroker(f.engine, f.payments, 30*time.Minute)

	b, err := f.engine.RequestBooking(request(entities.TierStandard, win(t, day, 10, 0, 12, 0), 0))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	t.Run("only the owner may propose", func(t *testing.T) {
		_, err := broker.ProposeSwap(b.ID, "u-stranger", 1000)
		if !errors.Is(err, apperrors.ErrOwnershipMismatch) {
			t.Fatalf("expected ErrOwnershipMismatch, got %v", err)
		}
	})

	t.Run("proposer cannot accept own offer", func(t *testing.T) {
		offer, err := broker.ProposeSwap(b.ID, b.UserID, 1000)
		if err != nil {
			t.Fatalf("propose failed: %v", err)
		}
		_, err = broker.AcceptSwap(acceptAs(offer.ID, b.UserID))
		if !errors.Is(err, apperrors.ErrOwnershipMismatch) {
			t.Fatalf("expected ErrOwnershipMismatch, got %v", err)
		}
	})

	t.Run("withdrawn offer is gone", func(t *testing.T) {
		offer, err := broker.ProposeSwap(b.ID, b.UserID, 1000)
		if err != nil {
			t.Fatalf("propose failed: %v", err)
		}
		if err := broker.WithdrawSwap(offer.ID, "u-stranger"); !errors.Is(err, apperrors.ErrOwnershipMismatch) {
			t.Fatalf("stranger withdrew the offer: %v", err)
		}
		if err := broker.WithdrawSwap(offer.ID, b.UserID); err != nil {
			t.Fatalf("withdraw failed: %v", err)
		}
		_, err = broker.AcceptSwap(acceptAs(offer.ID, "u-buyer"))
		if !errors.Is(err, apperrors.ErrOfferNotFound) {
			t.Fatalf("expected ErrOfferNotFound, got %v", err)
		}
	})
}

func TestSwapStaleOfferAfterCancel(t *testing.T) {
	f := newFixture(t)
	broker := NewTransferBroker(f.engine, f.payments, 30*time.Minute)

	b, err := f.engine.RequestBooking(request(entities.TierStandard, win(t, day, 10, 0, 12, 0), 0))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	offer, err := broker.ProposeSwap(b.ID, b.UserID, 1000)
	if err != nil {
		t.Fatalf("propose failed: %v", err)
	}
	if _, err := f.engine.Cancel(b.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	// The booking no longer holds its interval; no money may move.
	_, err = broker.AcceptSwap(acceptAs(offer.ID, "u-buyer"))
	if !errors.Is(err, apperrors.ErrOwnershipMismatch) {
		t.Fatalf("expected ErrOwnershipMismatch on a stale offer, got %v", err)
	}
	if len(f.payments.authorized) != 0 {
		t.Fatalf("stale swap authorized a hold: %v", f.payments.authorized)
	}
}

func TestSwapOfferExpires(t *testing.T) {
	f := newFixture(t)
	broker := NewTransferBroker(f.engine, f.payments, 10*time.Minute)

	b, err := f.engine.RequestBooking(request(entities.TierStandard, win(t, day, 10, 0, 12, 0), 0))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	offer, err := broker.ProposeSwap(b.ID, b.UserID, 1000)
	if err != nil {
		t.Fatalf("propose failed: %v", err)
	}

	f.clock.Advance(11 * time.Minute)
	if n := broker.ExpireOffers(f.clock.Now()); n != 1 {
		t.Fatalf("expected one expired offer, got %d", n)
	}
	_, err = broker.AcceptSwap(acceptAs(offer.ID, "u-buyer"))
	if !errors.Is(err, apperrors.ErrOfferNotFound) {
		t.Fatalf("expected ErrOfferNotFound after expiry, got %v", err)
	}
}

func TestExtendHoldGapFilling(t *testing.T) {
	f := newFixture(t, entities.Spot{ID: "A-1", Zone: "A", ProximityRank: 1})
	broker := NewTransferBroker(f.engine, f.payments, 30*time.Minute)

	b, err := f.engine.RequestBooking(request(entities.TierStandard, win(t, day, 10, 0, 11, 0), 0))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	neighborReq := request(entities.TierStandard, win(t, day, 11, 30, 12, 30), 0)
	neighborReq.UserID = "u-neighbor"
	if _, err := f.engine.RequestBooking(neighborReq); err != nil {
		t.Fatalf("neighbor request failed: %v", err)
	}

	t.Run("extension into open gap succeeds", func(t *testing.T) {
		got, err := broker.ExtendHold(b.ID, b.UserID, 20*time.Minute, 500)
		if err != nil {
			t.Fatalf("extend failed: %v", err)
		}
		if want := win(t, day, 10, 0, 11, 20).End; !got.Window.End.Equal(want) {
			t.Fatalf("expected end %v, got %v", want, got.Window.End)
		}
		if want := b.GraceDeadline.Add(20 * time.Minute); !got.GraceDeadline.Equal(want) {
			t.Fatalf("grace deadline not extended with the window: %v", got.GraceDeadline)
		}
		if got.AuctionPremiumCents != 500 {
			t.Fatalf("premium not recorded: %d", got.AuctionPremiumCents)
		}
		if got.Score <= b.Score {
			t.Fatalf("premium did not raise the score: %d <= %d", got.Score, b.Score)
		}
	})

	t.Run("extension into the neighbor fails untouched", func(t *testing.T) {
		_, err := broker.ExtendHold(b.ID, b.UserID, 30*time.Minute, 500)
		if !errors.Is(err, apperrors.ErrExtensionConflict) {
			t.Fatalf("expected ErrExtensionConflict, got %v", err)
		}
		got, _ := f.engine.GetBooking(b.ID)
		if want := win(t, day, 10, 0, 11, 20).End; !got.Window.End.Equal(want) {
			t.Fatalf("failed extension changed the window: %v", got.Window.End)
		}
		// The premium hold placed for the failed attempt is released.
		if len(f.payments.released) == 0 {
			t.Fatalf("premium hold for the failed extension was not released")
		}
	})

	t.Run("stranger cannot extend", func(t *testing.T) {
		_, err := broker.ExtendHold(b.ID, "u-stranger", 5*time.Minute, 0)
		if !errors.Is(err, apperrors.ErrOwnershipMismatch) {
			t.Fatalf("expected ErrOwnershipMismatch, got %v", err)
		}
	})
}

func TestSwapPaymentDoesNotBlockOtherSpots(t *testing.T) {
	f := newFixture(t)
	broker := NewTransferBroker(f.engine, f.payments, 30*time.Minute)

	seller, err := f.engine.RequestBooking(request(entities.TierStandard, win(t, day, 10, 0, 12, 0), 0))
	if err != nil {
		t.Fatalf("seller request failed: %v", err)
	}
	otherReq := request(entities.TierStandard, win(t, day, 10, 0, 12, 0), 0)
	otherReq.UserID = "u-other"
	other, err := f.engine.RequestBooking(otherReq)
	if err != nil {
		t.Fatalf("other request failed: %v", err)
	}
	if other.SpotID == seller.SpotID {
		t.Fatalf("expected bookings on distinct spots, both on %s", other.SpotID)
	}

	f.clock.Advance(65 * time.Minute) // 10:05, both windows started

	offer, err := broker.ProposeSwap(seller.ID, seller.UserID, 2000)
	if err != nil {
		t.Fatalf("propose failed: %v", err)
	}

	f.payments.authEntered = make(chan struct{})
	f.payments.authProceed = make(chan struct{})

	swapDone := make(chan error, 1)
	go func() {
		_, err := broker.AcceptSwap(acceptAs(offer.ID, "u-buyer"))
		swapDone <- err
	}()
	<-f.payments.authEntered // the swap is parked inside the gateway call

	checkinDone := make(chan error, 1)
	go func() {
		_, err := f.engine.CheckIn(other.ID, f.clock.Now())
		checkinDone <- err
	}()
	select {
	case err := <-checkinDone:
		if err != nil {
			t.Fatalf("check-in failed: %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("check-in on an unrelated spot stalled behind the swap's gateway call")
	}

	close(f.payments.authProceed)
	f.payments.authEntered = nil
	if err := <-swapDone; err != nil {
		t.Fatalf("swap failed: %v", err)
	}
	got, err := f.engine.GetBooking(seller.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.UserID != "u-buyer" {
		t.Fatalf("expected ownership transferred to u-buyer, got %s", got.UserID)
	}
}

func TestExtendHoldPaymentDoesNotBlockOtherSpots(t *testing.T) {
	f := newFixture(t)
	broker := NewTransferBroker(f.engine, f.payments, 30*time.Minute)

	b, err := f.engine.RequestBooking(request(entities.TierStandard, win(t, day, 10, 0, 11, 0), 0))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	otherReq := request(entities.TierStandard, win(t, day, 10, 0, 12, 0), 0)
	otherReq.UserID = "u-other"
	other, err := f.engine.RequestBooking(otherReq)
	if err != nil {
		t.Fatalf("other request failed: %v", err)
	}

	f.clock.Advance(65 * time.Minute)

	f.payments.authEntered = make(chan struct{})
	f.payments.authProceed = make(chan struct{})

	extendDone := make(chan error, 1)
	go func() {
		_, err := broker.ExtendHold(b.ID, b.UserID, 20*time.Minute, 500)
		extendDone <- err
	}()
	<-f.payments.authEntered

	checkinDone := make(chan error, 1)
	go func() {
		_, err := f.engine.CheckIn(other.ID, f.clock.Now())
		checkinDone <- err
	}()
	select {
	case err := <-checkinDone:
		if err != nil {
			t.Fatalf("check-in failed: %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("check-in on an unrelated spot stalled behind the extension's gateway call")
	}

	close(f.payments.authProceed)
	f.payments.authEntered = nil
	if err := <-extendDone; err != nil {
		t.Fatalf("extend failed: %v", err)
	}
}

func TestSwapRevalidatesAfterPaymentHold(t *testing.T) {
	f := newFixture(t)
	broker := NewTransferBroker(f.engine, f.payments, 30*time.Minute)

	b, err := f.engine.RequestBooking(request(entities.TierStandard, win(t, day, 10, 0, 12, 0), 0))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	offer, err := broker.ProposeSwap(b.ID, b.UserID, 2000)
	if err != nil {
		t.Fatalf("propose failed: %v", err)
	}

	f.payments.authEntered = make(chan struct{})
	f.payments.authProceed = make(chan struct{})

	swapDone := make(chan error, 1)
	go func() {
		_, err := broker.AcceptSwap(acceptAs(offer.ID, "u-buyer"))
		swapDone <- err
	}()
	<-f.payments.authEntered

	// The seller cancels while the buyer's hold is being placed.
	if _, err := f.engine.Cancel(b.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	close(f.payments.authProceed)
	f.payments.authEntered = nil

	if err := <-swapDone; !errors.Is(err, apperrors.ErrOwnershipMismatch) {
		t.Fatalf("expected ErrOwnershipMismatch after the racing cancel, got %v", err)
	}
	if len(f.payments.released) == 0 {
		t.Fatal("buyer's hold was not released after the failed swap")
	}
}
