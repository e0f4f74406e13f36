// Copyright 2025 mechgen Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package codegen

import (
	"fmt"
	"maps"
	"strings"

	"github.com/ajroetker/mechgen/mech/ast"
)

// Events raised by a point process are never delivered directly: they are
// appended to the per-thread send buffer and flushed by the simulator after
// the kernel, which keeps delivery order independent of the instance
// iteration order. Artificial cells have no node and call the queue
// directly.

// ---------------------------------------------------------------------------
// Event calls
// ---------------------------------------------------------------------------

func (g *generator) exprList(args []ast.Expr) string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = g.expr(a)
	}
	return strings.Join(out, ", ")
}

func (g *generator) netSendCall(c *ast.Call) string {
	tqitem := g.resolveStorage("tqitem")
	weightIndex, pnt := "weight_index", "pnt"
	if !g.fr.netReceive {
		weightIndex = "0"
		if g.m.ArtificialCell {
			pnt = "(Point_process*)" + g.resolveStorage("point_process")
		}
	}
	if g.m.ArtificialCell {
		return fmt.Sprintf("artcell_net_send(&%s, %s, %s, nt->_t+%s)", tqitem, weightIndex, pnt, g.exprList(c.Args))
	}
	return fmt.Sprintf("net_send_buffering(ml->_net_send_buffer, 0, %s, %s, %s, %s+%s)",
		tqitem, weightIndex, g.resolveStorage("point_process"), g.resolveStorage("t"), g.exprList(c.Args))
}

func (g *generator) netMoveCall(c *ast.Call) string {
	if !g.fr.netReceive {
		fail(g.m.Suffix, CategoryEvent, "net_move is only allowed in NET_RECEIVE")
	}
	tqitem := g.resolveStorage("tqitem")
	if g.m.ArtificialCell {
		return fmt.Sprintf("artcell_net_move(&%s, pnt, %s)", tqitem, g.exprList(c.Args))
	}
	return fmt.Sprintf("net_send_buffering(ml->_net_send_buffer, 2, %s, -1, %s, %s, 0.0)",
		tqitem, g.resolveStorage("point_process"), g.exprList(c.Args))
}

func (g *generator) netEventCall(c *ast.Call) string {
	if g.m.ArtificialCell {
		return fmt.Sprintf("net_event(pnt, %s)", g.exprList(c.Args))
	}
	return fmt.Sprintf("net_send_buffering(ml->_net_send_buffer, 1, -1, -1, %s, %s, 0.0)",
		g.resolveStorage("point_process"), g.exprList(c.Args))
}

// ---------------------------------------------------------------------------
// Send buffer
// ---------------------------------------------------------------------------

func (g *generator) netSendBufferRequired() bool {
	if g.m.Block(ast.KindNetReceive) == nil || g.m.ArtificialCell {
		return false
	}
	return g.cat.NetEventUsed || g.cat.NetSendUsed || len(g.cat.Watches) > 0
}

func (g *generator) netSendBuffering() {
	if !g.netSendBufferRequired() {
		return
	}
	g.blank()
	g.blank()
	g.open("static inline void net_send_buffering(NetSendBuffer_t* nsb, int type, int vdata_index, " +
		"int weight_index, int point_index, double t, double flag)")
	g.line("int i = 0;")
	g.line("i = nsb->_cnt++;")
	g.open("if(i >= nsb->_size)")
	g.line("nsb->grow();")
	g.close("")
	g.open("if(i < nsb->_size)")
	g.line("nsb->_sendtype[i] = type;")
	g.line("nsb->_vdata_index[i] = vdata_index;")
	g.line("nsb->_weight_index[i] = weight_index;")
	g.line("nsb->_pnt_index[i] = point_index;")
	g.line("nsb->_nsb_t[i] = t;")
	g.line("nsb->_nsb_flag[i] = flag;")
	g.close("")
	g.close("")
}

// sendEventMove hands every buffered event to the simulator queue.
func (g *generator) sendEventMove() {
	g.blank()
	g.line("NetSendBuffer_t* nsb = ml->_net_send_buffer;")
	g.open("for (int i=0; i < nsb->_cnt; i++)")
	g.line("int type = nsb->_sendtype[i];")
	g.line("int tid = nt->id;")
	g.line("double t = nsb->_nsb_t[i];")
	g.line("double flag = nsb->_nsb_flag[i];")
	g.line("int vdata_index = nsb->_vdata_index[i];")
	g.line("int weight_index = nsb->_weight_index[i];")
	g.line("int point_index = nsb->_pnt_index[i];")
	g.line("net_sem_from_gpu(type, vdata_index, weight_index, tid, point_index, t, flag);")
	g.close("")
	g.line("nsb->_cnt = 0;")
}

// ---------------------------------------------------------------------------
// NET_RECEIVE
// ---------------------------------------------------------------------------

// netReceiveCommon prints the view of the receiving instance and binds the
// NET_RECEIVE arguments used by body to their slots in the weight vector.
func (g *generator) netReceiveCommon(nr *ast.TopBlock, body *ast.Block, initial, inst bool) {
	g.line("int tid = pnt->_tid;")
	g.line("int id = pnt->_i_instance;")
	g.line("double v = 0;")
	if g.m.ArtificialCell || initial {
		g.line("NrnThread* nt = nrn_threads + tid;")
		g.line("Memb_list* ml = nt->_ml_list[pnt->_type];")
	}
	g.line("int nodecount = ml->nodecount;")
	g.line("int pnodecount = ml->_nodecount_padded;")
	g.line("double* data = ml->data;")
	g.line("double* weights = nt->weights;")
	g.line("Datum* indexes = ml->pdata;")
	g.line("ThreadDatum* thread = ml->_thread;")
	if inst {
		g.castInstance()
	}
	if len(nr.Params) == 0 {
		return
	}
	g.blank()
	for i, p := range nr.Params {
		if !ast.Uses(body, p.Name) {
			continue
		}
		g.writef("double* %s = weights + weight_index + %d;\n", p.Name, i)
		g.fr.renames[p.Name] = "(*" + p.Name + ")"
	}
}

func (g *generator) netReceiveFrame() frame {
	return frame{ctx: Context{UseInstance: true, InNetReceive: true}, netReceive: true}
}

func (g *generator) netReceiveKernel() {
	nr := g.m.Block(ast.KindNetReceive)
	if nr == nil {
		return
	}
	g.withFrame(g.netReceiveFrame(), func() {
		g.blank()
		g.blank()
		if g.m.ArtificialCell {
			g.open(fmt.Sprintf("static inline void %s(Point_process* pnt, int weight_index, double flag)", g.method("net_receive")))
		} else {
			g.open(fmt.Sprintf("static inline void %s(double t, Point_process* pnt, %s* inst, NrnThread* nt, Memb_list* ml, int weight_index, double flag)",
				g.method("net_receive_kernel"), g.instanceType()))
		}
		g.netReceiveCommon(nr, nr.Body, false, g.m.ArtificialCell)
		if g.m.ArtificialCell {
			g.line("double t = nt->_t;")
		}
		if ast.Uses(nr.Body, "v") {
			g.line("int node_id = ml->nodeindices[id];")
			g.line("v = nt->_actual_v[node_id];")
		}
		g.writef("%s = t;\n", g.resolveStorage("tsave"))
		if len(g.cat.Watches) > 0 {
			g.line("bool watch_remove = false;")
		}
		g.open("")
		g.body(nr.Body)
		g.close("")
		g.close("")
	})
}

// netReceive prints the entry point of a point process: the event is only
// recorded in the receive buffer.
func (g *generator) netReceive() {
	if g.m.Block(ast.KindNetReceive) == nil || g.m.ArtificialCell {
		return
	}
	g.blank()
	g.blank()
	g.open(fmt.Sprintf("static void %s(Point_process* pnt, int weight_index, double flag)", g.method("net_receive")))
	g.line("NrnThread* nt = nrn_threads + pnt->_tid;")
	g.line("Memb_list* ml = get_memb_list(nt);")
	g.line("NetReceiveBuffer_t* nrb = ml->_net_receive_buffer;")
	g.open("if (nrb->_cnt >= nrb->_size)")
	g.line("realloc_net_receive_buffer(nt, ml);")
	g.close("")
	g.line("int id = nrb->_cnt;")
	g.line("nrb->_pnt_index[id] = pnt-nt->pntprocs;")
	g.line("nrb->_weight_index[id] = weight_index;")
	g.line("nrb->_nrb_t[id] = nt->_t;")
	g.line("nrb->_nrb_flag[id] = flag;")
	g.line("nrb->_cnt++;")
	g.close("")
}

// netBufReceive delivers the buffered events of one thread in buffer
// order.
func (g *generator) netBufReceive() {
	if g.m.Block(ast.KindNetReceive) == nil || g.m.ArtificialCell {
		return
	}
	g.blank()
	g.blank()
	g.open(fmt.Sprintf("void %s(NrnThread* nt)", g.method("net_buf_receive")))
	g.line("Memb_list* ml = get_memb_list(nt);")
	g.open("if (!ml)")
	g.line("return;")
	g.close("")
	g.blank()
	g.line("NetReceiveBuffer_t* nrb = ml->_net_receive_buffer;")
	g.castInstance()
	g.line("int count = nrb->_displ_cnt;")
	g.open("for (int i = 0; i < count; i++)")
	g.line("int start = nrb->_displ[i];")
	g.line("int end = nrb->_displ[i+1];")
	g.open("for (int j = start; j < end; j++)")
	g.line("int index = nrb->_nrb_index[j];")
	g.line("int offset = nrb->_pnt_index[index];")
	g.line("double t = nrb->_nrb_t[index];")
	g.line("int weight_index = nrb->_weight_index[index];")
	g.line("double flag = nrb->_nrb_flag[index];")
	g.line("Point_process* point_process = nt->pntprocs + offset;")
	g.writef("%s(t, point_process, inst, nt, ml, weight_index, flag);\n", g.method("net_receive_kernel"))
	g.close("")
	g.close("")
	g.line("nrb->_displ_cnt = 0;")
	g.line("nrb->_cnt = 0;")
	if g.cat.NetSendUsed || g.cat.NetEventUsed {
		g.sendEventMove()
	}
	g.blank()
	g.close("")
}

// netInit prints the INITIAL block of NET_RECEIVE, run once per connection.
func (g *generator) netInit() {
	nr := g.m.Block(ast.KindNetReceive)
	if nr == nil || nr.Initial == nil {
		return
	}
	fr := g.kernelFrame()
	fr.netInit = true
	g.withFrame(fr, func() {
		g.blank()
		g.blank()
		g.line("/** initialize block for net receive */")
		g.open("static void net_init(Point_process* pnt, int weight_index, double flag)")
		if len(nr.Initial.Stmts) == 0 {
			g.line("// do nothing")
			g.close("")
			return
		}
		g.netReceiveCommon(nr, nr.Initial, true, true)
		if len(ast.Find[*ast.Watch](nr.Initial, nil)) > 0 {
			g.line("bool watch_remove = false;")
		}
		g.body(nr.Initial)
		g.line("auto& nsb = ml->_net_send_buffer;")
		g.close("")
	})
}

// forNetCon iterates over the connections targeting the instance; every
// argument addresses the weight vector of the current connection.
func (g *generator) forNetCon(s *ast.ForNetCon) {
	saved := g.fr.renames
	g.fr.renames = maps.Clone(saved)
	for i, p := range s.Params {
		g.fr.renames[p] = fmt.Sprintf("weights[%d + nt->_fornetcon_weight_perm[i]]", i)
	}
	g.writef("const size_t offset = %d*pnodecount + id;\n", g.cat.ForNetConIndex)
	g.line("const size_t for_netcon_start = nt->_fornetcon_perm_indices[indexes[offset]];")
	g.line("const size_t for_netcon_end = nt->_fornetcon_perm_indices[indexes[offset] + 1];")
	g.open("for (auto i = for_netcon_start; i < for_netcon_end; ++i)")
	g.body(s.Body)
	g.close("")
	g.fr.renames = saved
}

// ---------------------------------------------------------------------------
// WATCH
// ---------------------------------------------------------------------------

// A watch slot holds 0 when not armed, 2 when armed with a false condition
// and 3 when the condition turned true and its event was sent.

func watchSlot(k int) string { return fmt.Sprintf("watch%d", k+1) }

func unparen(e ast.Expr) ast.Expr {
	if p, ok := e.(*ast.Paren); ok {
		return p.X
	}
	return e
}

func (g *generator) watchActivate() {
	if len(g.cat.Watches) == 0 {
		return
	}
	g.withFrame(g.kernelFrame(), func() {
		g.blank()
		g.blank()
		g.open(fmt.Sprintf("static void nrn_watch_activate(%s* inst, int id, int pnodecount, int watch_id, double v, bool &watch_remove)", g.instanceType()))
		g.open("if (watch_remove == false)")
		for k := range g.cat.Watches {
			g.writef("%s = 0;\n", g.resolveStorage(watchSlot(k)))
		}
		g.line("watch_remove = true;")
		g.close("")
		for k, w := range g.cat.Watches {
			g.open(fmt.Sprintf("if (watch_id == %d)", k))
			g.writef("%s = 2 + (%s);\n", g.resolveStorage(watchSlot(k)), g.expr(unparen(w.Cond)))
			g.close("")
		}
		g.close("")
	})
}

// watchCheck sends the event of at most one clause per instance and pass:
// the first armed clause whose condition turned true.
func (g *generator) watchCheck() {
	if len(g.cat.Watches) == 0 {
		return
	}
	g.withFrame(g.kernelFrame(), func() {
		g.blank()
		g.blank()
		g.line("/** routine to check watch activation */")
		g.kernelOpen(g.method("nrn_watch_check"), kernelWatch)
		g.loopOpen()
		for _, w := range g.cat.Watches {
			if ast.Uses(w.Cond, "v") {
				g.voltage()
				break
			}
		}
		g.line("bool watch_untriggered = true;")
		tqitem := g.resolveStorage("tqitem")
		pnt := g.resolveStorage("point_process")
		t := g.resolveStorage("t")
		for k, w := range g.cat.Watches {
			slot := g.resolveStorage(watchSlot(k))
			g.open(fmt.Sprintf("if (%s&2 && watch_untriggered)", slot))
			g.open(fmt.Sprintf("if (%s)", g.expr(w.Cond)))
			g.open(fmt.Sprintf("if ((%s&1) == 0)", slot))
			g.line("watch_untriggered = false;")
			g.writef("net_send_buffering(ml->_net_send_buffer, 0, %s, -1, %s, %s+0.0, %s);\n", tqitem, pnt, t, g.expr(w.Value))
			g.close("")
			g.writef("%s = 3;\n", slot)
			g.closeOpen("else")
			g.writef("%s = 2;\n", slot)
			g.close("")
			g.close("")
		}
		g.close("")
		g.sendEventMove()
		g.close("")
	})
}
