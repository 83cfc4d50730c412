// Copyright 2022-2026 The COC Authors
// This file is part of the COC library.
//
// The COC library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The COC library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the COC library. If not, see <http://www.gnu.org/licenses/>.

package api

import (
	"time"

	"github.com/chainofclaw/COC-sub002/internal/api/filters"
)

// NewFilterService builds the eth filter namespace over the chain engine.
func NewFilterService(api *API, timeout time.Duration) *filters.FilterAPI {
	return filters.NewFilterAPI(&filtersBackend{chain: api.chain}, timeout)
}
