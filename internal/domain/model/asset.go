package model

import (
	"strings"

	"github.com/gagliardetto/solana-go"
)

// DefaultChain 未指定链时使用的链名称（与上游 blockchain 字段一致）
const DefaultChain = "solana"

// NativeAsset 原生资产（Wrapped SOL mint）
var NativeAsset = AssetID(solana.WrappedSol.String())

// nativeAliases 原生资产别名，大小写不敏感
var nativeAliases = map[string]struct{}{
	"sol":    {},
	"solana": {},
	"wsol":   {},
}

// NormalizeAsset 将用户输入的资产标识归一化
// 例: "SOL" -> So111...112, " <base58> " -> canonical base58
func NormalizeAsset(raw string) AssetID {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if _, ok := nativeAliases[strings.ToLower(s)]; ok {
		return NativeAsset
	}
	if pk, err := solana.PublicKeyFromBase58(s); err == nil {
		return AssetID(pk.String())
	}
	return AssetID(s)
}

// IsNative 是否为链原生资产
func IsNative(a AssetID) bool {
	return a == NativeAsset
}
