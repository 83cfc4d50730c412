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

package params

import "fmt"

var (
	// Following vars are injected through the build flags (see Makefile)
	GitCommit string
	GitBranch string
	GitTag    string
)

// Version format: Major.Minor.Build
const (
	VersionMajor    = 1  // Major version
	VersionMinor    = 4  // Minor version - feature release
	VersionBuild    = 62 // Build number - auto-incremented
	VersionModifier = "" // Modifier component (alpha, beta, stable)
)

// ClientIdentifier is the name reported by web3_clientVersion.
const ClientIdentifier = "coc"

func withModifier(vsn string) string {
	if !isStable() {
		vsn += "-" + VersionModifier
	}
	return vsn
}

func isStable() bool {
	return VersionModifier == "stable"
}

// Version holds the textual version string.
var Version = fmt.Sprintf("%d.%d.%d", VersionMajor, VersionMinor, VersionBuild)

// VersionWithModifier holds the textual version string including the modifier.
var VersionWithModifier = func() string {
	v := Version
	if VersionModifier != "" {
		v = withModifier(v)
	}
	return v
}()

// VersionWithCommit appends commit information to the version string.
func VersionWithCommit(gitCommit, gitDate string) string {
	vsn := VersionWithModifier
	if len(gitCommit) >= 8 {
		vsn += "-" + gitCommit[:8]
	}
	if gitDate != "" {
		vsn += "-" + gitDate
	}
	return vsn
}
