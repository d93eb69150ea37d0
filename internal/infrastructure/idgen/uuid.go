package idgen

import (
	"strings"

	"github.com/google/uuid"
)

const (
	referencePrefix  = "TXN-"
	redemptionPrefix = "RDM-"
	rewardPrefix     = "RWD-"
)

// UUIDGenerator UUIDv7ベースのID生成器
// v7が生成できない場合はv4にフォールバックする
type UUIDGenerator struct{}

// NewUUIDGenerator 新しいUUIDGeneratorを作成
func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

// NewReferenceNumber 台帳エントリの参照番号を生成
func (g *UUIDGenerator) NewReferenceNumber() string {
	return referencePrefix + newID()
}

// NewRedemptionID 引き換え記録のIDを生成
func (g *UUIDGenerator) NewRedemptionID() string {
	return redemptionPrefix + newID()
}

// NewRewardID 特典のIDを生成
func (g *UUIDGenerator) NewRewardID() string {
	return rewardPrefix + newID()
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return strings.ToUpper(id.String())
}
