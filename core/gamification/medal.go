package gamification

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/gamifica/core"
	"github.com/trezcool/gamifica/core/user"
)

// MedalEvaluator grants every medal whose threshold a user's XP has reached.
// It is the only writer of user medals.
type MedalEvaluator struct {
	medals MedalRepository
	ledger LedgerRepository
	tx     core.Transactor
}

func NewMedalEvaluator(medals MedalRepository, ledger LedgerRepository, tx core.Transactor) *MedalEvaluator {
	return &MedalEvaluator{medals: medals, ledger: ledger, tx: tx}
}

// EvaluateAndGrant grants the user's pending medals and returns the names of those newly granted.
// It joins exec's transaction when given one, otherwise it runs its own.
// Calling it again without an XP change returns an empty list.
func (me *MedalEvaluator) EvaluateAndGrant(ctx context.Context, userID string, exec ...core.DBExecutor) ([]string, error) {
	if len(exec) > 0 && exec[0] != nil {
		xp, err := me.ledger.LockUser(ctx, userID, exec[0])
		if err != nil {
			return nil, err
		}
		return me.grant(ctx, userID, xp, exec[0])
	}

	var names []string
	err := me.tx.InTx(ctx, func(exec core.DBExecutor) error {
		xp, err := me.ledger.LockUser(ctx, userID, exec)
		if err != nil {
			return err
		}
		names, err = me.grant(ctx, userID, xp, exec)
		return err
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// grant must run inside a transaction holding the user's row.
func (me *MedalEvaluator) grant(ctx context.Context, userID string, xp int, exec core.DBExecutor) ([]string, error) {
	pending, err := me.medals.PendingMedals(ctx, userID, xp, exec)
	if err != nil {
		return nil, errors.Wrap(err, "finding pending medals")
	}

	names := make([]string, 0, len(pending))
	now := time.Now().UTC()
	for _, medal := range pending {
		granted, err := me.medals.GrantMedal(ctx, userID, medal.ID, now, exec)
		if err != nil {
			return nil, errors.Wrapf(err, "granting medal %q", medal.Name)
		}
		if granted {
			names = append(names, medal.Name)
		}
	}
	return names, nil
}

func medalMessages(usr user.User, xp int, names []string, frontendBaseURL string) []*core.EmailMessage {
	msgs := make([]*core.EmailMessage, 0, len(names))
	for _, name := range names {
		msg := &core.EmailMessage{
			To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject:      fmt.Sprintf("You earned the %s medal", name),
			TemplateName: "medal_granted",
			TemplateData: map[string]interface{}{"Name": usr.Name, "Medal": name, "XP": xp},
		}
		msg.SetFrontendBaseURL(frontendBaseURL)
		msgs = append(msgs, msg)
	}
	return msgs
}
