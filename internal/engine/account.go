package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rickgao/papertrade/internal/ledger"
	"github.com/rickgao/papertrade/internal/model"
)

// OpenAccount creates the account of userID. A nil cash opens it with the
// configured initial balance.
func (e *Engine) OpenAccount(ctx context.Context, userID string, cash *decimal.Decimal) (model.Account, error) {
	if err := validateUserID(userID); err != nil {
		return model.Account{}, e.reject(err, "op", "open", "user_id", userID)
	}

	amount := e.cfg.InitialCash
	if cash != nil {
		amount = *cash
	}
	if amount.IsNegative() {
		return model.Account{}, e.reject(newError(KindInvalidInput, nil, "opening cash %s is negative", amount), "op", "open", "user_id", userID)
	}

	acct := model.Account{UserID: userID, Cash: amount, CreatedAt: e.timestamp()}
	err := e.update(ctx, userID, func(tx ledger.Tx) error {
		return tx.CreateAccount(ctx, acct)
	}, nil)
	if err != nil {
		return model.Account{}, e.reject(err, "op", "open", "user_id", userID)
	}

	e.logger.Info("account opened", "user_id", userID, "cash", amount)
	return acct, nil
}

// Account returns the account of userID.
func (e *Engine) Account(ctx context.Context, userID string) (model.Account, error) {
	if err := validateUserID(userID); err != nil {
		return model.Account{}, e.reject(err, "op", "account")
	}

	var acct model.Account
	err := e.view(ctx, userID, func(r ledger.Reader) error {
		var err error
		acct, err = account(ctx, r, userID)
		return err
	})
	if err != nil {
		return model.Account{}, e.reject(err, "op", "account", "user_id", userID)
	}
	return acct, nil
}
