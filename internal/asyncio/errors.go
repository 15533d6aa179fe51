package asyncio

import "errors"

var errUnsupportedConn = errors.New("asyncio: connection does not expose a raw file descriptor")
