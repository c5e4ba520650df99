package scenario

import "github.com/mikabele/canoe-go/internal/episode"

// rewriteK walks the Prev/Inner chain of ep iteratively — collecting
// every node from outermost to innermost, then rebuilding from the
// innermost node back out — instead of recursing once per node, so a
// long chain of nested combinators cannot overflow the Go call stack.
func rewriteK(ep *episode.Episode, transform func(episode.Effect) episode.Effect) *episode.Episode {
	if ep == nil {
		return nil
	}

	var chain []*episode.Episode
	node := ep
	for node != nil {
		chain = append(chain, node)
		switch node.Kind {
		case episode.KindBind, episode.KindMap:
			node = node.Prev
		case episode.KindProtected, episode.KindTolerate, episode.KindCancellable, episode.KindTimeLimited:
			node = node.Inner
		default:
			node = nil
		}
	}

	var built *episode.Episode
	for i := len(chain) - 1; i >= 0; i-- {
		built = rewriteNode(chain[i], built, transform)
	}
	return built
}

// rewriteNode rebuilds a single IR node with its (already rewritten)
// child substituted in. For nodes whose continuation is only produced
// at runtime (Bind's k, Protected's recover), the continuation itself
// is wrapped so that whatever episode it returns later is passed back
// through rewriteK before the matcher ever sees it. The original node's
// Hooks are carried onto the rebuilt node, since none of the
// constructors below accept them and a bare reconstruction would
// otherwise silently drop any OnSuspend/OnResume an adapter had set.
func rewriteNode(n *episode.Episode, child *episode.Episode, transform func(episode.Effect) episode.Effect) *episode.Episode {
	var rebuilt *episode.Episode
	switch n.Kind {
	case episode.KindPure:
		rebuilt = episode.Pure(n.Value)
	case episode.KindRaiseError:
		rebuilt = episode.RaiseError(n.Err)
	case episode.KindNext:
		rebuilt = episode.Next(n.Predicate)
	case episode.KindEval:
		rebuilt = episode.Eval(transform(n.Effect))
	case episode.KindBind:
		k := n.Bind
		rebuilt = episode.Bind(child, func(v any) *episode.Episode {
			return rewriteK(k(v), transform)
		})
	case episode.KindMap:
		rebuilt = episode.Map(child, n.MapF)
	case episode.KindProtected:
		recover := n.Recover
		rebuilt = episode.Protected(child, func(err error) *episode.Episode {
			return rewriteK(recover(err), transform)
		})
	case episode.KindTolerate:
		rebuilt = episode.Tolerate(child, n.Limit, n.OnMismatch)
	case episode.KindCancellable:
		rebuilt = episode.Cancellable(child, n.CancelWhen, n.OnCancel)
	case episode.KindTimeLimited:
		rebuilt = episode.TimeLimited(child, n.Duration)
	default:
		return n
	}
	rebuilt.Hooks = n.Hooks
	return rebuilt
}
