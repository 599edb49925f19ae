// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes server-sent-event chat completion streams into text
// fragments.
//
// A Decoder reads a response body incrementally, splits it into lines, picks
// out "data: " frames and extracts the delta text of each frame by trying an
// ordered list of payload shapes. Malformed frames are logged and skipped.
//
// # Usage
//
//	dec := stream.NewDecoder(resp.Body)
//	for fragment, err := range dec.All() {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Print(fragment)
//	}
//	full := dec.Text()
package stream
