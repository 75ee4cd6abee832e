package banking

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// ErrNoTanMechanisms is returned when the bank offers no TAN mechanism at
// all, which leaves the dialog unusable.
var ErrNoTanMechanisms = errors.New("no TAN mechanisms available")

// EnsureMechanism configures the session's TAN mechanism and medium.
//
// A saved preference is applied only when the bank still offers that exact
// mechanism ID (and the saved medium, where the mechanism requires one).
// Otherwise the handler selects anew. The returned preference is what the
// session ended up using; changed reports whether it differs from the saved
// one and should be persisted.
func EnsureMechanism(
	ctx context.Context,
	sess Session,
	saved TanPreference,
	handler ChallengeHandler,
	force bool,
) (pref TanPreference, changed bool, err error) {
	mechanisms, err := sess.TanMechanisms(ctx)
	if err != nil {
		return TanPreference{}, false, err
	}
	if len(mechanisms) == 0 {
		return TanPreference{}, false, ErrNoTanMechanisms
	}

	if !force && saved.IsSet() {
		applied, err := applySaved(ctx, sess, saved, mechanisms)
		if err != nil {
			return TanPreference{}, false, err
		}
		if applied {
			return saved, false, nil
		}
		logrus.WithField("mechanism", saved.MechanismID).
			Warn("saved TAN mechanism no longer offered, re-selecting")
	}

	pref, err = selectMechanism(ctx, sess, mechanisms, handler)
	if err != nil {
		return TanPreference{}, false, err
	}
	return pref, true, nil
}

func applySaved(ctx context.Context, sess Session, saved TanPreference, mechanisms []TanMechanism) (bool, error) {
	var mech TanMechanism
	found := false
	for _, m := range mechanisms {
		if m.ID == saved.MechanismID {
			mech = m
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}

	if err := sess.SetTanMechanism(mech.ID); err != nil {
		return false, err
	}

	if !mech.NeedsMedium {
		return true, nil
	}
	if saved.MediumName == "" {
		return false, nil
	}

	media, err := sess.TanMedia(ctx, mech)
	if err != nil {
		return false, err
	}
	for _, name := range media {
		if name == saved.MediumName {
			if err := sess.SetTanMedium(name); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	// Saved medium gone; the whole preference is stale.
	return false, nil
}

func selectMechanism(ctx context.Context, sess Session, mechanisms []TanMechanism, handler ChallengeHandler) (TanPreference, error) {
	var mech TanMechanism
	if len(mechanisms) == 1 {
		mech = mechanisms[0]
	} else {
		chosen, err := handler.SelectMechanism(ctx, mechanisms)
		if err != nil {
			return TanPreference{}, err
		}
		mech = chosen
	}

	if err := sess.SetTanMechanism(mech.ID); err != nil {
		return TanPreference{}, err
	}

	pref := TanPreference{MechanismID: mech.ID, MechanismName: mech.Name}
	if !mech.NeedsMedium {
		return pref, nil
	}

	media, err := sess.TanMedia(ctx, mech)
	if err != nil {
		return TanPreference{}, err
	}
	if len(media) == 0 {
		return TanPreference{}, errors.New("no TAN media available")
	}

	medium := media[0]
	if len(media) > 1 {
		medium, err = handler.SelectMedium(ctx, mech, media)
		if err != nil {
			return TanPreference{}, err
		}
	}
	if err := sess.SetTanMedium(medium); err != nil {
		return TanPreference{}, err
	}
	pref.MediumName = medium
	return pref, nil
}
