// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package idgen

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sony/sonyflake"
)

var defaultFlake = sync.OnceValues(newFlakeGenerator)

type SonyFlakeGenerator struct {
	sf *sonyflake.Sonyflake
}

func newFlakeGenerator() (*SonyFlakeGenerator, error) {
	settings := sonyflake.Settings{
		StartTime: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		MachineID: hostMachineID,
	}

	sf, err := sonyflake.New(settings)
	if err != nil {
		return nil, err
	}
	if sf == nil {
		return nil, errors.New("failed to create Sonyflake instance")
	}
	return &SonyFlakeGenerator{sf: sf}, nil
}

// hostMachineID derives the machine part from hostname and pid so that
// generation works in containers without a private IPv4 address.
func hostMachineID() (uint16, error) {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return uint16(xxhash.Sum64String(fmt.Sprintf("%s/%d", host, os.Getpid()))), nil
}

// NextID returns a positive int64 that'll increase roughly in time order.
func (sf *SonyFlakeGenerator) NextID() int64 {
	v, err := sf.sf.NextID()
	if err != nil {
		return rand.Int64()
	}
	return int64(v)
}

// InstanceID returns an id for this process, used to tell replicas apart in logs.
func InstanceID() int64 {
	gen, err := defaultFlake()
	if err != nil {
		return rand.Int64()
	}
	return gen.NextID()
}
