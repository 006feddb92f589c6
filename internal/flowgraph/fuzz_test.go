/*
 * Copyright 2022 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */


package flowgraph

import (
    `context`
    `testing`

    `github.com/brianvoe/gofakeit/v6`
    `github.com/stretchr/testify/require`
)

func FuzzOptimize(f *testing.F) {
    for i := int64(0); i < 8; i++ {
        f.Add(i, uint8(i * 3 + 2))
    }

    /* any random graph survives the pipeline */
    f.Fuzz(func(t *testing.T, seed int64, n uint8) {
        fk := gofakeit.New(seed)
        g := randomGraph(t, fk, int(n % 24) + 2)
        g.Opts.Verify = true

        _, err := Optimize(context.Background(), g)
        require.NoError(t, err)
        require.NoError(t, Verify(g), "%s", Dump(g))
    })
}
