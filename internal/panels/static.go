package panels

import "github.com/inboxops/autotag/internal/model"

// DefaultPanels is the built-in directory used when the remote registry
// has never been reachable. It mirrors the registry's seed data; the
// remote copy is authoritative once a fetch succeeds.
var DefaultPanels = []model.Panel{
	{ID: 10, Names: []string{"Goatgaming", "Goatgaming2"}},
	{ID: 12, Names: []string{"ThiagoP", "ThiagoP2"}},
	{ID: 1, Names: []string{"Oporto"}},
	{ID: 18, Names: []string{"PruebaPY"}},
	{ID: 22, Names: []string{"Prueba2"}},
	{ID: 23, Names: []string{"TestRespond"}},
	{ID: 24, Names: []string{"Manga"}},
	{ID: 26, Names: []string{"Scalo"}},
	{ID: 27, Names: []string{"Pruebagg"}},
	{ID: 5, Names: []string{"Trebol", "Treboldorado", "Treboldorado2"}},
	{ID: 20, Names: []string{"Cocan"}},
	{ID: 16, Names: []string{"Escaloneta"}},
	{ID: 32, Names: []string{"Opulix"}},
	{ID: 19, Names: []string{"Denver"}},
	{ID: 33, Names: []string{"Godzilla"}},
	{ID: 34, Names: []string{"Nova"}},
	{ID: 35, Names: []string{"Martina"}},
	{ID: 36, Names: []string{"Florida"}},
}
