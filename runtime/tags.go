package runtime

import "github.com/sbl8/sigflow/core"

// propagateTags forwards the tags on each input's consumed window to the
// outputs chosen by the block's policy, rescaling offsets by the relative
// rate. It runs before any cursor moves, so downstream never sees items
// ahead of their tags.
func propagateTags(b *Block, ins []InputPort, outs []OutputPort, consumed []int) {
	forward := b.policy != TagPropagateDont && len(outs) > 0
	rate := b.rate.RelativeRate()
	for i, in := range ins {
		if consumed[i] <= 0 {
			continue
		}
		start := in.NitemsRead()
		// Take also retires matching blacklist entries, forwarded or not.
		tags := in.Tags().Take(start, start+uint64(consumed[i]))
		if !forward {
			continue
		}
		for _, t := range tags {
			t.Offset = scaleOffset(t.Offset, rate)
			switch b.policy {
			case TagPropagateAllToAll:
				for _, out := range outs {
					out.PostTag(t)
				}
			case TagPropagateOneToOne:
				if i < len(outs) {
					outs[i].PostTag(t)
				}
			}
		}
	}
}

func scaleOffset(offset uint64, rate float64) uint64 {
	if rate == 1 {
		return offset
	}
	return uint64(core.RoundHalfUp(float64(offset) * rate))
}
