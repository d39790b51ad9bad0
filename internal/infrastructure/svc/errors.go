package svc

import "errors"

// ErrStorageInitFailed 错误：存储初始化失败
var ErrStorageInitFailed = errors.New("storage initialization failed")

// ErrNothingToRun 错误：既没有开启 viewer 服务也没有监视资产
var ErrNothingToRun = errors.New("server disabled and no assets to watch")
