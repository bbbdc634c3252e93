package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Name         string `json:"name"`
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	Password     string `json:"-"`
	Pin          string `json:"-"`
	IsAdmin      bool   `gorm:"not null;default:false" json:"is_admin"`
	ReferralCode string `gorm:"uniqueIndex;size:16" json:"referral_code"`
	ReferrerID   string `gorm:"index;size:16" json:"referrer_id,omitempty"`
	// ReferrerPaid only ever moves from false to true.
	ReferrerPaid bool `gorm:"not null;default:false" json:"referrer_paid"`

	Wallets []Wallet `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) HasPin() bool {
	return u.Pin != ""
}

type Wallet struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"uniqueIndex:idx_wallet_owner_coin;not null" json:"user_id"`
	Coin        Coin      `gorm:"uniqueIndex:idx_wallet_owner_coin;size:8;not null" json:"coin"`
	Address     string    `gorm:"index;not null" json:"address"`
	ExternalID  string    `json:"-"`
	Credentials string    `json:"-" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
}

type OrderType string

const (
	OrderBuy  OrderType = "buy"
	OrderSell OrderType = "sell"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirming OrderStatus = "confirming"
	OrderCompleted  OrderStatus = "completed"
	OrderRejected   OrderStatus = "rejected"
)

type Order struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	UserID          uint            `gorm:"index;not null" json:"user_id"`
	Type            OrderType       `gorm:"size:8;not null" json:"type"`
	Coin            Coin            `gorm:"size:8;not null" json:"coin"`
	AmountSent      decimal.Decimal `gorm:"type:numeric(38,18)" json:"amount_sent"`
	AmountToRecieve decimal.Decimal `gorm:"type:numeric(38,18)" json:"amount_to_recieve"`
	BankName        string          `json:"bank_name"`
	AccountNumber   string          `json:"account_number"`
	AccountHolder   string          `json:"account_holder"`
	Currency        string          `gorm:"size:8" json:"currency"`
	Status          OrderStatus     `gorm:"size:16;index;not null;default:pending" json:"status"`
	Message         string          `json:"message,omitempty"`
	// SettlementKey is the idempotency key of the admin send that settles a buy.
	SettlementKey string    `gorm:"index;size:64" json:"-"`
	TxRef         string    `json:"tx_ref,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Notification struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	UserID          uint            `gorm:"index;uniqueIndex:idx_notification_hash,where:transaction_hash <> ''" json:"user_id"`
	From            string          `json:"from"`
	To              string          `json:"to"`
	Amount          decimal.Decimal `gorm:"type:numeric(38,18)" json:"amount"`
	Coin            Coin            `gorm:"size:8;index" json:"coin"`
	TransactionHash string          `gorm:"uniqueIndex:idx_notification_hash,where:transaction_hash <> ''" json:"transaction_hash,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

type Swap struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	UserID          uint            `gorm:"index;not null" json:"user_id"`
	SwapID          string          `gorm:"uniqueIndex" json:"swap_id"`
	CoinSent        Coin            `gorm:"size:8" json:"coin_sent"`
	AmountSent      decimal.Decimal `gorm:"type:numeric(38,18)" json:"amount_sent"`
	CoinRecieve     Coin            `gorm:"size:8" json:"coin_recieve"`
	AmountToRecieve decimal.Decimal `gorm:"type:numeric(38,18)" json:"amount_to_recieve"`
	DepositAddress  string          `json:"deposit_address"`
	TxRef           string          `json:"tx_ref"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
}

type TransferStatus string

const (
	TransferInitiated TransferStatus = "initiated"
	TransferSent      TransferStatus = "sent"
	TransferFailed    TransferStatus = "failed"
)

// Transfer is the outbound send journal, keyed by idempotency key.
type Transfer struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	IdempotencyKey string          `gorm:"uniqueIndex;size:128;not null" json:"idempotency_key"`
	OwnerID        uint            `gorm:"index" json:"owner_id"`
	Coin           Coin            `gorm:"size:8" json:"coin"`
	To             string          `json:"to"`
	Amount         decimal.Decimal `gorm:"type:numeric(38,18)" json:"amount"`
	Status         TransferStatus  `gorm:"size:16;index" json:"status"`
	TxRef          string          `json:"tx_ref,omitempty"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type ReferralPayoutStatus string

const (
	PayoutPaid    ReferralPayoutStatus = "paid"
	PayoutFailed  ReferralPayoutStatus = "failed"
	PayoutUnknown ReferralPayoutStatus = "unknown"
)

type ReferralPayout struct {
	ID             uint                 `gorm:"primaryKey" json:"id"`
	ReferredUserID uint                 `gorm:"uniqueIndex;not null" json:"referred_user_id"`
	ReferrerUserID uint                 `gorm:"index;not null" json:"referrer_user_id"`
	Coin           Coin                 `gorm:"size:8" json:"coin"`
	Amount         decimal.Decimal      `gorm:"type:numeric(38,18)" json:"amount"`
	Source         string               `gorm:"size:16" json:"source"`
	Status         ReferralPayoutStatus `gorm:"size:16" json:"status"`
	TxRef          string               `json:"tx_ref,omitempty"`
	Error          string               `json:"error,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// Settings is a single row holding the runtime-tunable knobs.
type Settings struct {
	ID                 uint            `gorm:"primaryKey" json:"-"`
	ReferralActive     bool            `json:"referral_active"`
	ReferralPercentage decimal.Decimal `gorm:"type:numeric(10,4)" json:"referral_percentage"`
	BTCFee             decimal.Decimal `gorm:"type:numeric(38,18)" json:"btc_fee"`
	ETHFee             decimal.Decimal `gorm:"type:numeric(38,18)" json:"eth_fee"`
	USDTFee            decimal.Decimal `gorm:"type:numeric(38,18)" json:"usdt_fee"`
	MinBuyUSD          decimal.Decimal `gorm:"type:numeric(20,2)" json:"min_buy_usd"`
	MinBuyNGN          decimal.Decimal `gorm:"type:numeric(20,2)" json:"min_buy_ngn"`
	BankName           string          `json:"bank_name"`
	AccountNumber      string          `json:"account_number"`
	AccountHolderName  string          `json:"account_holder_name"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func (s *Settings) Fee(coin Coin) decimal.Decimal {
	switch coin {
	case CoinBTC:
		return s.BTCFee
	case CoinETH:
		return s.ETHFee
	case CoinUSDT:
		return s.USDTFee
	}
	return decimal.Zero
}

func (s *Settings) MinBuy(currency string) decimal.Decimal {
	switch currency {
	case "USD":
		return s.MinBuyUSD
	case "NGN":
		return s.MinBuyNGN
	}
	return decimal.Zero
}

type TxDirection string

const (
	TxSend    TxDirection = "send"
	TxReceive TxDirection = "receive"
)

// Transaction is a chain history entry as reported by a wallet backend. Not persisted.
type Transaction struct {
	Type      TxDirection     `json:"type"`
	Address   string          `json:"address"`
	Amount    decimal.Decimal `json:"amount"`
	Fee       decimal.Decimal `json:"fee"`
	Timestamp time.Time       `json:"timestamp"`
	Hash      string          `json:"hash"`
}
